package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the reviewpulse service
type Config struct {
	Port              int
	DatabasePath      string
	RedisAddr         string  // Redis address for the queue backend and status cache
	WorkerConcurrency int     // Number of concurrent workers for processing tasks
	OpenAIAPIKey      string  // API key for the LLM analysis backend
	OpenAIBaseURL     string  // Override for the LLM API endpoint (tests, proxies)
	OpenAIModel       string  // Chat model used for both analysis stages
	ScraperTimeoutSec int     // Per-request timeout for marketplace scrapers
	StatusCacheTTLSec int     // TTL for cached product status entries
	OTLPEndpoint      string  // OTLP HTTP endpoint for trace export (empty = tracing disabled)
	TraceSampleRatio  float64 // Fraction of traces to sample (0.0-1.0)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Port:              getEnvAsInt("REVIEWPULSE_PORT", 8080),
		DatabasePath:      getEnv("DATABASE_PATH", "./reviewpulse.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 10),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ScraperTimeoutSec: getEnvAsInt("SCRAPER_TIMEOUT_SECONDS", 120),
		StatusCacheTTLSec: getEnvAsInt("STATUS_CACHE_TTL_SECONDS", 30),
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", ""),
		TraceSampleRatio:  getEnvAsFloat("TRACE_SAMPLE_RATIO", 1.0),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("REVIEWPULSE_PORT must be between 1 and 65535")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be greater than 0")
	}
	if c.OpenAIBaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL is required")
	}
	if c.OpenAIModel == "" {
		return fmt.Errorf("OPENAI_MODEL is required")
	}
	if c.ScraperTimeoutSec <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT_SECONDS must be greater than 0")
	}
	if c.StatusCacheTTLSec < 0 {
		return fmt.Errorf("STATUS_CACHE_TTL_SECONDS must be >= 0")
	}
	if c.TraceSampleRatio < 0.0 || c.TraceSampleRatio > 1.0 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0.0 and 1.0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
