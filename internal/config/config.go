package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	EngineRPCURL  string        `envconfig:"ENGINE_RPC_URL" default:"http://localhost:6800/jsonrpc"`
	EngineSecret  string        `envconfig:"ENGINE_SECRET"`
	EngineTimeout time.Duration `envconfig:"ENGINE_TIMEOUT" default:"15s"`

	// APIKey guards the REST surface. Empty means the API is open; only do
	// that on a trusted network.
	APIKey string `envconfig:"API_KEY"`

	StagingDir string `envconfig:"STAGING_DIR" default:"/content/temp_downloads"`
	DriveDir   string `envconfig:"DRIVE_DIR" default:"/content/drive/MyDrive/TorrentDownloads"`
	DBPath     string `envconfig:"DB_PATH" default:"completions.db"`

	MonitorInterval    time.Duration `envconfig:"MONITOR_INTERVAL" default:"5s"`
	RelocateMaxRetries uint          `envconfig:"RELOCATE_MAX_RETRIES" default:"5"`
	MaxParallel        int           `envconfig:"MAX_PARALLEL" default:"4"`

	LogBufferSize     int           `envconfig:"LOG_BUFFER_SIZE" default:"100"`
	DriveInfoCacheTTL time.Duration `envconfig:"DRIVE_INFO_CACHE_TTL" default:"60s"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"cloudleecher"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8000"`
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

	return &cfg, nil
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
