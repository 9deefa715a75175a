// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	OrderDBPath string
	Price       PriceConfig
}

// PriceConfig controls the upstream quote lookup.
type PriceConfig struct {
	BaseURL       string
	Timeout       time.Duration
	FallbackPrice float64
	CacheTTL      time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		OrderDBPath: getEnv("ORDER_DB_PATH", "./data/orders.db"),
		Price: PriceConfig{
			BaseURL:       getEnv("PRICE_BASE_URL", "https://api.coingecko.com"),
			Timeout:       getEnvDuration("PRICE_TIMEOUT", 8*time.Second),
			FallbackPrice: getEnvFloat("PRICE_FALLBACK", 65123.45),
			CacheTTL:      getEnvDuration("PRICE_CACHE_TTL", 30*time.Second),
			SweepInterval: getEnvDuration("PRICE_CACHE_SWEEP_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.OrderDBPath == "" {
		return fmt.Errorf("ORDER_DB_PATH cannot be empty")
	}
	if c.Price.BaseURL == "" {
		return fmt.Errorf("PRICE_BASE_URL cannot be empty")
	}
	if c.Price.Timeout <= 0 || c.Price.Timeout >= 10*time.Second {
		return fmt.Errorf("PRICE_TIMEOUT must be positive and under 10s")
	}
	if c.Price.FallbackPrice <= 0 {
		return fmt.Errorf("PRICE_FALLBACK must be > 0")
	}
	if c.Price.CacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must be > 0")
	}
	if c.Price.SweepInterval <= 0 {
		return fmt.Errorf("PRICE_CACHE_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
