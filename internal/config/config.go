// Package config содержит логику чтения конфигурации сервиса докфлоу.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса докфлоу.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	RecognizerAddress string `env:"RECOGNIZER_ADDRESS"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"documents"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"`

	SyncDeadline time.Duration   `env:"SYNC_DEADLINE" envDefault:"2s"`
	Workers      int             `env:"WORKERS" envDefault:"3"`
	MaxAttempts  int             `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff []time.Duration `env:"RETRY_BACKOFF" envDefault:"5s,60s,120s"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRecognizerAddress := cfg.RecognizerAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RecognizerAddress, "r", "", "invoice recognition service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRecognizerAddress != "" {
		cfg.RecognizerAddress = envRecognizerAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.SyncDeadline <= 0 {
		return nil, fmt.Errorf("sync deadline must be positive, got %v", cfg.SyncDeadline)
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if len(cfg.RetryBackoff) == 0 {
		return nil, fmt.Errorf("retry backoff schedule must not be empty")
	}

	return cfg, nil
}
