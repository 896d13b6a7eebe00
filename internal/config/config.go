package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. SANITYCHECK_SINK_PORT
const EnvPrefix = "SANITYCHECK_"

// DefaultPath is where Load looks when no path is given
const DefaultPath = "~/.sanitycheck/config.toml"

// Config holds the application configuration
type Config struct {
	LogLevel string         `toml:"log_level" env:"LOG_LEVEL"`
	Sink     SinkConfig     `toml:"sink" envPrefix:"SINK_"`
	Producer ProducerConfig `toml:"producer" envPrefix:"PRODUCER_"`
	Mirror   MirrorConfig   `toml:"mirror" envPrefix:"MIRROR_"`
}

// SinkConfig holds log sink configuration
type SinkConfig struct {
	Host           string   `toml:"host" env:"HOST"`
	Port           int      `toml:"port" env:"PORT"`
	LogFile        string   `toml:"log_file" env:"LOG_FILE"`
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// ProducerConfig holds configuration for relaying logs to a sink
type ProducerConfig struct {
	Endpoint  string `toml:"endpoint" env:"ENDPOINT"`
	Source    string `toml:"source" env:"SOURCE"`
	Enabled   bool   `toml:"enabled" env:"ENABLED"`
	Timeout   string `toml:"timeout" env:"TIMEOUT"` // e.g., "2s", "500ms"
	QueueSize int    `toml:"queue_size" env:"QUEUE_SIZE"`
}

// MirrorConfig holds the optional Redis mirror configuration
type MirrorConfig struct {
	RedisURL string `toml:"redis_url" env:"REDIS_URL"` // e.g., redis://localhost:6379/0
	Channel  string `toml:"channel" env:"CHANNEL"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel: "info",
		Sink: SinkConfig{
			Host:           "127.0.0.1",
			Port:           3001,
			LogFile:        filepath.Join(home, ".sanitycheck", "debug.log"),
			AllowedOrigins: []string{"*"},
		},
		Producer: ProducerConfig{
			Endpoint:  "http://127.0.0.1:3001",
			Source:    "collect",
			Enabled:   true,
			Timeout:   "2s",
			QueueSize: 100,
		},
		Mirror: MirrorConfig{
			Channel: "sanitycheck:debug-logs",
		},
	}
}

// Load loads configuration from a file, then applies environment overrides
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path = expandPath(path)

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Addr returns the sink listen address in host:port format
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Sink.Host, c.Sink.Port)
}

// GetTimeout returns the producer delivery timeout, defaulting to 2s
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Producer.Timeout))
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetLogLevel returns the configured console log level, defaulting to info
func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// UseMirror reports whether records should be mirrored to Redis
func (c *Config) UseMirror() bool {
	return c.Mirror.RedisURL != ""
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
