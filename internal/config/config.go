package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DBPath          string `envconfig:"DB_PATH" default:"bundle_installer.db"`
	DataDir         string `envconfig:"DATA_DIR" default:"data"`
	WorkDir         string `envconfig:"WORK_DIR"`
	ImagesDir       string `envconfig:"IMAGES_DIR"`
	ExtractStrategy string `envconfig:"EXTRACT_STRATEGY" default:"auto"`

	BundleURL      string `envconfig:"BUNDLE_URL"`
	BundleVersion  string `envconfig:"BUNDLE_VERSION"`
	BundleChecksum string `envconfig:"BUNDLE_CHECKSUM"`
	BundleToken    string `envconfig:"BUNDLE_TOKEN"`

	RetryDelays           []time.Duration `envconfig:"RETRY_DELAYS" default:"500ms,1s,2s"`
	ProgressIntervalBytes int64           `envconfig:"PROGRESS_INTERVAL_BYTES" default:"262144"`
	ImageWorkers          int             `envconfig:"IMAGE_WORKERS" default:"4"`
	AutoStart             bool            `envconfig:"AUTO_START" default:"false"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile           string `envconfig:"LOG_FILE"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled        bool   `default:"true"`
		ServiceName    string `split_words:"true" default:"bundle_installer"`
		ServiceVersion string `split_words:"true" default:"dev"`
		OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`
		OTLPInsecure   bool   `envconfig:"OTLP_INSECURE" default:"false"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.DataDir, "work")
	}

	if cfg.ImagesDir == "" {
		cfg.ImagesDir = filepath.Join(cfg.DataDir, "images")
	}

	return &cfg, nil
}

// LockPath is the file guarding the data directory against a second daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "bundle_installer.lock")
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
