package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// IMAP source
	IMAPServer      string        `env:"IMAP_SERVER,required"` // host:port, e.g. imap.gmail.com:993
	IMAPEmail       string        `env:"IMAP_EMAIL,required"`
	IMAPPassword    string        `env:"IMAP_PASSWORD,required"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/solarsync.db"`

	// Sync
	SyncDays     int           `env:"SYNC_DAYS" envDefault:"3"` // Lookback for the first sync
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`            // 0 = run a single cycle and exit
	Enrich       bool          `env:"ENRICH" envDefault:"true"`

	// Analyzer
	AnalyzerKind string        `env:"ANALYZER_KIND" envDefault:"auto"` // "auto", "heuristic" or "model"
	ModelURL     string        `env:"MODEL_URL"`                       // Inference service base URL
	ModelName    string        `env:"MODEL_NAME" envDefault:"distilbert-base-uncased-finetuned-sst-2-english"`
	ModelTimeout time.Duration `env:"MODEL_TIMEOUT" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncDays <= 0 {
		return nil, fmt.Errorf("SYNC_DAYS must be positive, got %d", cfg.SyncDays)
	}

	switch cfg.AnalyzerKind {
	case "auto", "heuristic", "model":
	default:
		return nil, fmt.Errorf("ANALYZER_KIND must be auto, heuristic or model, got %q", cfg.AnalyzerKind)
	}

	return cfg, nil
}
