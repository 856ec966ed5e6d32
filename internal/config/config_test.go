package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	os.Setenv("REVIEWPULSE_PORT", "9090")
	os.Setenv("DATABASE_PATH", "/tmp/test.db")
	os.Setenv("REDIS_ADDR", "redis-test:6379")
	os.Setenv("WORKER_CONCURRENCY", "4")
	os.Setenv("OPENAI_MODEL", "gpt-4o")
	os.Setenv("STATUS_CACHE_TTL_SECONDS", "15")
	defer func() {
		os.Unsetenv("REVIEWPULSE_PORT")
		os.Unsetenv("DATABASE_PATH")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("WORKER_CONCURRENCY")
		os.Unsetenv("OPENAI_MODEL")
		os.Unsetenv("STATUS_CACHE_TTL_SECONDS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected Port 9090, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected DatabasePath '/tmp/test.db', got '%s'", cfg.DatabasePath)
	}
	if cfg.RedisAddr != "redis-test:6379" {
		t.Errorf("Expected RedisAddr 'redis-test:6379', got '%s'", cfg.RedisAddr)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("Expected WorkerConcurrency 4, got %d", cfg.WorkerConcurrency)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("Expected OpenAIModel 'gpt-4o', got '%s'", cfg.OpenAIModel)
	}
	if cfg.StatusCacheTTLSec != 15 {
		t.Errorf("Expected StatusCacheTTLSec 15, got %d", cfg.StatusCacheTTLSec)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config with defaults: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default Port 8080, got %d", cfg.Port)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("Expected default model 'gpt-4o-mini', got '%s'", cfg.OpenAIModel)
	}
	if cfg.TraceSampleRatio != 1.0 {
		t.Errorf("Expected default sample ratio 1.0, got %f", cfg.TraceSampleRatio)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:              8080,
			DatabasePath:      "./test.db",
			RedisAddr:         "localhost:6379",
			WorkerConcurrency: 10,
			OpenAIBaseURL:     "https://api.openai.com",
			OpenAIModel:       "gpt-4o-mini",
			ScraperTimeoutSec: 60,
			TraceSampleRatio:  1.0,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"missing db", func(c *Config) { c.DatabasePath = "" }},
		{"missing redis", func(c *Config) { c.RedisAddr = "" }},
		{"bad concurrency", func(c *Config) { c.WorkerConcurrency = 0 }},
		{"missing model", func(c *Config) { c.OpenAIModel = "" }},
		{"bad timeout", func(c *Config) { c.ScraperTimeoutSec = 0 }},
		{"bad sample ratio", func(c *Config) { c.TraceSampleRatio = 1.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetEnvAsIntInvalid(t *testing.T) {
	os.Setenv("WORKER_CONCURRENCY", "not-a-number")
	defer os.Unsetenv("WORKER_CONCURRENCY")

	if got := getEnvAsInt("WORKER_CONCURRENCY", 10); got != 10 {
		t.Errorf("Expected fallback 10 for invalid int, got %d", got)
	}
}
