// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"querypilot/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string `json:"log_level"`
	// BackendURL overrides the manifest origin when set. Mainly for
	// self-hosted deployments and local development.
	BackendURL string `json:"backend_url,omitempty"`
	// Database is the catalog queries run against by default.
	Database string       `json:"database"`
	Stream   StreamConfig `json:"stream"`
}

// StreamConfig tunes progress-stream reconnection.
type StreamConfig struct {
	MaxRetries  int `json:"max_retries"`
	BaseDelayMS int `json:"base_delay_ms"`
	MaxDelayMS  int `json:"max_delay_ms"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults. A .env file in
// the working directory and QUERYPILOT_* environment variables overlay the
// stored values, env winning over file.
func Load() (Config, error) {
	var c Config
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, err
		}
	case errors.Is(err, os.ErrNotExist):
		c = defaults()
	default:
		return c, err
	}
	applyEnv(&c)
	return c, nil
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Stream: StreamConfig{
			MaxRetries:  3,
			BaseDelayMS: 1000,
			MaxDelayMS:  16000,
		},
	}
}

// applyEnv overlays .env and process environment onto the loaded config.
func applyEnv(c *Config) {
	_ = godotenv.Load() // absent .env is fine

	if v := os.Getenv("QUERYPILOT_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("QUERYPILOT_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("QUERYPILOT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("QUERYPILOT_STREAM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Stream.MaxRetries = n
		}
	}
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
