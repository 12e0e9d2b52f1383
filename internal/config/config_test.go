package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/bundles")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/var/lib/bundles", "work"), cfg.WorkDir)
	assert.Equal(t, filepath.Join("/var/lib/bundles", "images"), cfg.ImagesDir)
	assert.Equal(t, filepath.Join("/var/lib/bundles", "bundle_installer.lock"), cfg.LockPath())
	assert.Equal(t, "auto", cfg.ExtractStrategy)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, cfg.RetryDelays)
	assert.Equal(t, int64(262144), cfg.ProgressIntervalBytes)
	assert.Equal(t, 4, cfg.ImageWorkers)
	assert.False(t, cfg.AutoStart)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "bundle_installer", cfg.Telemetry.ServiceName)
	assert.Equal(t, "0.0.0.0:9091", cfg.Web.BindAddress)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("WORK_DIR", "/tmp/work")
	t.Setenv("BUNDLE_URL", "https://cdn.example.com/premium.zip")
	t.Setenv("RETRY_DELAYS", "1s,5s")
	t.Setenv("AUTO_START", "true")
	t.Setenv("TELEMETRY_ENABLED", "false")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/work", cfg.WorkDir)
	assert.Equal(t, "https://cdn.example.com/premium.zip", cfg.BundleURL)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, cfg.RetryDelays)
	assert.True(t, cfg.AutoStart)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "127.0.0.1:8080", cfg.Web.BindAddress)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("IMAGE_WORKERS", "many")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
