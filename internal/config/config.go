package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "inferno.db"
	defaultMaxRequests = 4
	defaultOutputName  = "output"
	defaultDevice      = "auto"

	envListenAddr  = "INFERNO_LISTEN_ADDR"
	envDBPath      = "INFERNO_DB_PATH"
	envLogLevel    = "INFERNO_LOG_LEVEL"
	envModelPath   = "INFERNO_MODEL_PATH"
	envDevices     = "INFERNO_DEVICES"
	envMaxRequests = "INFERNO_MAX_REQUESTS"
	envOutputName  = "INFERNO_OUTPUT_NAME"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	LogLevel    slog.Level
	ModelPath   string
	Devices     []string
	MaxRequests int
	OutputName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		Devices:     []string{defaultDevice},
		MaxRequests: defaultMaxRequests,
		OutputName:  defaultOutputName,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envModelPath); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv(envDevices); v != "" {
		cfg.Devices = parseDevices(v)
	}
	if v := os.Getenv(envMaxRequests); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRequests = n
		}
	}
	if v := os.Getenv(envOutputName); v != "" {
		cfg.OutputName = v
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDevices splits a comma-separated device list, dropping empty entries.
func parseDevices(s string) []string {
	var devices []string
	for _, d := range strings.Split(s, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return []string{defaultDevice}
	}
	return devices
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
