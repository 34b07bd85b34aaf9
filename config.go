package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/core"
	"github.com/repairfix-assistant/server/internal/store"
	pkgredis "github.com/repairfix-assistant/server/pkg/redis"
	"github.com/repairfix-assistant/server/pkg/telemetry"
)

// AppConfig defines all configurable parameters of the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`
	Port        int              `envconfig:"PORT" default:"3001"`

	// Infrastructure
	Redis     pkgredis.Config
	Database  store.Config
	Telemetry telemetry.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Extraction model.ExtractionModelConfig
	Response   model.ResponseModelConfig
	Catalog    model.CatalogConfig
	Search     model.SearchConfig
	Chat       model.ChatConfig
	Retry      model.RetryConfig
}

func loadConfig(envFile string) (*AppConfig, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFile)

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}
