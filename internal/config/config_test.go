package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "by_token", cfg.MergeStrategy)
	assert.Equal(t, "v1", cfg.SchemaVersion)
	assert.InDelta(t, 0.5, cfg.FallbackTriggerThreshold, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.RefineTimeout)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.Equal(t, "spa", cfg.TesseractLanguage)
	assert.True(t, cfg.TesseractEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MERGE_STRATEGY", "by_line")
	t.Setenv("SCHEMA_VERSION", "v2")
	t.Setenv("FALLBACK_TRIGGER_THRESHOLD", "0.8")
	t.Setenv("REFINE_TIMEOUT", "90s")
	t.Setenv("BATCH_CONCURRENCY", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "by_line", cfg.MergeStrategy)
	assert.Equal(t, "v2", cfg.SchemaVersion)
	assert.InDelta(t, 0.8, cfg.FallbackTriggerThreshold, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.RefineTimeout)
	assert.Equal(t, 8, cfg.BatchConcurrency)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown merge strategy", "MERGE_STRATEGY", "by_paragraph"},
		{"threshold above one", "FALLBACK_TRIGGER_THRESHOLD", "1.5"},
		{"unknown schema version", "SCHEMA_VERSION", "v3"},
		{"zero concurrency", "BATCH_CONCURRENCY", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
