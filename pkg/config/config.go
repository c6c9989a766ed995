// Package config holds process-wide configuration for taskpulse.
// Values come from defaults, then an optional YAML file, then environment
// variables — later sources win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host string `yaml:"host" env:"TASKPULSE_HOST"`
	Port int    `yaml:"port" env:"TASKPULSE_PORT"`
}

// StoreConfig configures the sqlite task store.
type StoreConfig struct {
	Path string `yaml:"path" env:"TASKPULSE_DB"`
}

// CatalogConfig configures the external todo catalog the importer pulls from.
type CatalogConfig struct {
	BaseURL string        `yaml:"base_url" env:"TASKPULSE_CATALOG_URL"`
	MaxID   int           `yaml:"max_id" env:"TASKPULSE_CATALOG_MAX_ID"`
	Timeout time.Duration `yaml:"timeout" env:"TASKPULSE_CATALOG_TIMEOUT"`
}

// ImportConfig configures the background import cycle.
type ImportConfig struct {
	Period time.Duration `yaml:"period" env:"TASKPULSE_IMPORT_PERIOD"`
	// Cron, when set, overrides Period with a cron-expression schedule.
	Cron string `yaml:"cron" env:"TASKPULSE_IMPORT_CRON"`
}

// Config is the root configuration object, injected into every component at
// startup. No package reads it from ambient global state.
type Config struct {
	Gateway  GatewayConfig `yaml:"gateway"`
	Store    StoreConfig   `yaml:"store"`
	Catalog  CatalogConfig `yaml:"catalog"`
	Import   ImportConfig  `yaml:"import"`
	LogLevel string        `yaml:"log_level" env:"TASKPULSE_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Store: StoreConfig{
			Path: "taskpulse.db",
		},
		Catalog: CatalogConfig{
			BaseURL: "https://jsonplaceholder.typicode.com",
			MaxID:   200,
			Timeout: 10 * time.Second,
		},
		Import: ImportConfig{
			Period: 60 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds the effective configuration. path may be empty; a missing file
// is not an error, a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
	}
	if c.Catalog.MaxID < 1 {
		return fmt.Errorf("catalog max_id must be >= 1, got %d", c.Catalog.MaxID)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}
	if c.Import.Period <= 0 {
		return fmt.Errorf("import period must be positive, got %s", c.Import.Period)
	}
	return nil
}

// ListenAddr returns the host:port the gateway binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
