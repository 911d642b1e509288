package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	hybridcfg "github.com/qualiteair/hybride/services/internal/config"
)

const (
	defaultPort           = 8080
	defaultRequestTimeout = 60 * time.Second
)

// Config holds settings for the read-only report API. Hybrid carries the
// store settings and default filters shared with the retriever.
type Config struct {
	Hybrid         hybridcfg.Config
	Port           int
	RequestTimeout time.Duration
}

// Load reads the shared configuration, then the API-specific variables.
func Load() (Config, error) {
	hc, err := hybridcfg.Load("")
	if err != nil {
		return Config{}, err
	}
	if err := hc.Validate(); err != nil {
		return Config{}, err
	}
	cfg := Config{Hybrid: hc, Port: defaultPort, RequestTimeout: defaultRequestTimeout}
	return cfg, applyEnv(&cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if portStr := getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if s := getenv("API_REQUEST_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid API_REQUEST_TIMEOUT: %s", s)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
