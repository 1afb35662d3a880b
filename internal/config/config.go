package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server  ServerConfig
	Apify   ApifyConfig
	Storage StorageConfig
	Queue   QueueConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string // bearer token required by the HTTP API; empty disables auth
}

type ApifyConfig struct {
	BaseURL        string
	Token          string
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type QueueConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Apify: ApifyConfig{
			BaseURL:        "https://api.apify.com/v2",
			RateLimit:      10,
			RateBurst:      5,
			RequestTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Queue: QueueConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/jobrelay/config.json and then applies JOBRELAY_*
// environment overrides. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Apify.BaseURL == "" {
		errs = append(errs, errors.New("apify.base_url is empty"))
	}
	if c.Apify.RateLimit < 0 {
		errs = append(errs, errors.New("apify.rate_limit must not be negative"))
	}
	if c.Apify.RateLimit > 0 && c.Apify.RateBurst < 1 {
		errs = append(errs, errors.New("apify.rate_burst must be at least 1"))
	}
	if c.Apify.RequestTimeout <= 0 {
		errs = append(errs, errors.New("apify.request_timeout must be positive"))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
