// Package config holds configuration loading and logger setup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// REST API
	APIBaseURL string `yaml:"apiBaseUrl"`

	// Realtime socket
	SocketURL  string        `yaml:"socketUrl"`
	SocketPath string        `yaml:"socketPath"`
	AckTimeout time.Duration `yaml:"ackTimeout"`

	// Logging
	LogFile      string     `yaml:"logFile"`
	LogLevelName string     `yaml:"logLevel"`
	LogLevel     slog.Level `yaml:"-"`
}

// Load reads configuration from an optional YAML file, then applies
// environment variable overrides. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Config{
		APIBaseURL:   "http://localhost:4000",
		SocketURL:    "http://localhost:4000",
		SocketPath:   "/socket.io",
		AckTimeout:   10 * time.Second,
		LogFile:      "/tmp/bizchat.log",
		LogLevelName: "INFO",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.APIBaseURL = getEnv("BIZCHAT_API_URL", cfg.APIBaseURL)
	cfg.SocketURL = getEnv("BIZCHAT_SOCKET_URL", cfg.SocketURL)
	cfg.SocketPath = getEnv("BIZCHAT_SOCKET_PATH", cfg.SocketPath)
	cfg.LogFile = getEnv("BIZCHAT_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("BIZCHAT_LOG_LEVEL", cfg.LogLevelName)

	if v := os.Getenv("BIZCHAT_ACK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse BIZCHAT_ACK_TIMEOUT: %w", err)
		}
		cfg.AckTimeout = d
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
