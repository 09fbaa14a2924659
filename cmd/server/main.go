package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagercall/backend/internal/config"
	"github.com/pagercall/backend/internal/escalation"
	httpapi "github.com/pagercall/backend/internal/http"
	"github.com/pagercall/backend/internal/notify"
	"github.com/pagercall/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "pagercall-backend").Logger()

	ctx := context.Background()

	var repo store.Repository
	if cfg.DatabaseURL == "" {
		repo = store.NewMemory()
		logger.Info().Msg("using in-memory store")
	} else {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		repo = pg
	}
	defer repo.Close()

	var chat notify.Channel
	if cfg.ChatWebhookURL == "" {
		chat = &notify.MockChannel{ChannelName: "chat"}
		logger.Info().Msg("using mock chat channel")
	} else {
		chat = notify.WebhookChannel{ChannelName: "chat", URL: cfg.ChatWebhookURL}
	}
	registry := notify.NewRegistry(chat)
	contacts := notify.StaticContacts{Channels: []string{"chat"}}

	dispatcher := notify.NewDispatcher(registry, contacts, logger)
	dispatcher.MaxAttempts = cfg.NotifyMaxAttempts
	dispatcher.BaseBackoff = cfg.NotifyBaseBackoff

	groups := escalation.ParseStaticGroups(cfg.UserGroups)
	if len(groups) > 0 {
		logger.Info().Int("groups", len(groups)).Msg("static user groups loaded")
	}

	engine := escalation.NewEngine(repo, dispatcher, groups, logger)
	engine.MaxRepeats = cfg.EscalationMaxRepeat
	defer engine.Stop()

	router := httpapi.Router(cfg, repo, engine, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
