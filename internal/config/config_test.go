package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	c := defaults()
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %v", c.LogLevel)
	}
	if c.Stream.MaxRetries != 3 || c.Stream.BaseDelayMS != 1000 || c.Stream.MaxDelayMS != 16000 {
		t.Errorf("unexpected stream defaults: %+v", c.Stream)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("QUERYPILOT_BACKEND_URL", "http://localhost:8080")
	t.Setenv("QUERYPILOT_DATABASE", "analytics")
	t.Setenv("QUERYPILOT_STREAM_RETRIES", "5")

	c := defaults()
	applyEnv(&c)

	if c.BackendURL != "http://localhost:8080" {
		t.Errorf("BackendURL = %v", c.BackendURL)
	}
	if c.Database != "analytics" {
		t.Errorf("Database = %v", c.Database)
	}
	if c.Stream.MaxRetries != 5 {
		t.Errorf("MaxRetries = %v", c.Stream.MaxRetries)
	}
}

func TestApplyEnvIgnoresInvalidRetries(t *testing.T) {
	t.Setenv("QUERYPILOT_STREAM_RETRIES", "lots")

	c := defaults()
	applyEnv(&c)

	if c.Stream.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v", c.Stream.MaxRetries)
	}
}
