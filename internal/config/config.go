package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	Port                string        `mapstructure:"PORT"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	AdminKey            string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed         string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	DefaultTimeZone     string        `mapstructure:"DEFAULT_TIME_ZONE"`
	EscalationMaxRepeat int           `mapstructure:"ESCALATION_MAX_REPEATS"`
	NotifyMaxAttempts   int           `mapstructure:"NOTIFY_MAX_ATTEMPTS"`
	NotifyBaseBackoff   time.Duration `mapstructure:"NOTIFY_BASE_BACKOFF"`
	ChatWebhookURL      string        `mapstructure:"CHAT_WEBHOOK_URL"`
	UserGroups          string        `mapstructure:"USER_GROUPS"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DEFAULT_TIME_ZONE", "UTC")
	v.SetDefault("ESCALATION_MAX_REPEATS", 3)
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 5)
	v.SetDefault("NOTIFY_BASE_BACKOFF", "500ms")
	v.SetDefault("USER_GROUPS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
