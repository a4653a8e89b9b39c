package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	// StoreBackend selects the live-state store: "redis" or "memory".
	// Memory is single-process and non-durable, meant for development.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// StoreTimeout caps every single store operation; expirations surface
	// to clients as a retryable storage error.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// MongoURI enables the durable room archive; empty disables it.
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"handraise"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLog bool   `env:"PRETTY_LOG" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
