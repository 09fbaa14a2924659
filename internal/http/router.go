package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/pagercall/backend/internal/config"
	"github.com/pagercall/backend/internal/escalation"
	"github.com/pagercall/backend/internal/http/handlers"
	"github.com/pagercall/backend/internal/http/middleware"
	"github.com/pagercall/backend/internal/store"

	_ "github.com/pagercall/backend/docs"
)

func Router(cfg config.Config, repo store.Repository, engine *escalation.Engine, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:           repo,
		Engine:          engine,
		Validator:       validator.New(),
		Logger:          logger,
		AdminKey:        cfg.AdminKey,
		DefaultTimeZone: cfg.DefaultTimeZone,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/schedules/:id/oncall", h.OnCall)
		api.GET("/shifts/:id", h.ShiftGet)
		api.GET("/incidents/:id/run", h.IncidentRun)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/shifts", h.ShiftCreate)
		admin.PUT("/shifts/:id", h.ShiftUpdate)
		admin.DELETE("/shifts/:id", h.ShiftDelete)
		admin.POST("/schedules", h.ScheduleCreate)
		admin.POST("/policies", h.PolicyCreate)
		admin.POST("/incidents/:id/escalate", h.IncidentEscalate)
		admin.POST("/incidents/:id/ack", h.IncidentAck)
		admin.POST("/incidents/:id/resolve", h.IncidentResolve)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
