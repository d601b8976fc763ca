package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"facturas/internal/logger"
)

type Config struct {
	// OpenAI Configuration (refinement backend)
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float32

	// Google Cloud Configuration (OCR sources)
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Tesseract Configuration (local fallback OCR source)
	TesseractEnabled  bool
	TesseractLanguage string

	// Pipeline Configuration
	MergeStrategy            string  // whole_document, by_line, by_token
	FallbackTriggerThreshold float64 // 0.0-1.0, required-field ratio below which refinement runs
	SchemaVersion            string  // v1 (legacy) or v2
	RefineTimeout            time.Duration
	BatchConcurrency         int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:                getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAITemperature:          float32(getEnvFloat("OPENAI_TEMPERATURE", 0.0)),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "eu"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		TesseractEnabled:           getEnvBool("TESSERACT_ENABLED", true),
		TesseractLanguage:          getEnv("TESSERACT_LANG", "spa"),
		MergeStrategy:              getEnv("MERGE_STRATEGY", "by_token"),
		FallbackTriggerThreshold:   getEnvFloat("FALLBACK_TRIGGER_THRESHOLD", 0.5),
		SchemaVersion:              getEnv("SCHEMA_VERSION", "v1"),
		RefineTimeout:              getEnvDuration("REFINE_TIMEOUT", 60*time.Second),
		BatchConcurrency:           getEnvInt("BATCH_CONCURRENCY", 4),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.MergeStrategy {
	case "whole_document", "by_line", "by_token":
	default:
		return fmt.Errorf("MERGE_STRATEGY must be one of whole_document, by_line, by_token (got %q)", c.MergeStrategy)
	}
	if c.FallbackTriggerThreshold < 0 || c.FallbackTriggerThreshold > 1 {
		return fmt.Errorf("FALLBACK_TRIGGER_THRESHOLD must be in [0,1] (got %v)", c.FallbackTriggerThreshold)
	}
	switch c.SchemaVersion {
	case "v1", "v2":
	default:
		return fmt.Errorf("SCHEMA_VERSION must be v1 or v2 (got %q)", c.SchemaVersion)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1 (got %d)", c.BatchConcurrency)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
