// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string

	// Narrative annotation collaborator.
	NarrativeURL     string
	NarrativeAPIKey  string
	NarrativeTimeout time.Duration

	AnnotationMaxConcurrent int
	AnnotationBudgetUSD     float64
	ProcessorInterval       time.Duration
}

// Load reads configuration from environment variables, falling back to
// defaults suitable for local development. A .env file is honored when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "recon.db")
	viper.SetDefault("JWT_SECRET", "recon-dev-secret")
	viper.SetDefault("NARRATIVE_URL", "http://localhost:9090")
	viper.SetDefault("NARRATIVE_API_KEY", "")
	viper.SetDefault("NARRATIVE_TIMEOUT", "30s")
	viper.SetDefault("ANNOTATION_MAX_CONCURRENT", 4)
	viper.SetDefault("ANNOTATION_BUDGET_USD", 5.0)
	viper.SetDefault("PROCESSOR_INTERVAL", "30s")

	viper.AutomaticEnv()

	cfg := &Config{
		Port:                    viper.GetString("PORT"),
		DatabasePath:            viper.GetString("DATABASE_PATH"),
		JWTSecret:               viper.GetString("JWT_SECRET"),
		NarrativeURL:            viper.GetString("NARRATIVE_URL"),
		NarrativeAPIKey:         viper.GetString("NARRATIVE_API_KEY"),
		NarrativeTimeout:        viper.GetDuration("NARRATIVE_TIMEOUT"),
		AnnotationMaxConcurrent: viper.GetInt("ANNOTATION_MAX_CONCURRENT"),
		AnnotationBudgetUSD:     viper.GetFloat64("ANNOTATION_BUDGET_USD"),
		ProcessorInterval:       viper.GetDuration("PROCESSOR_INTERVAL"),
	}

	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = 30 * time.Second
	}
	if cfg.ProcessorInterval <= 0 {
		cfg.ProcessorInterval = 30 * time.Second
	}

	return cfg, nil
}
