// Package logging provides structured logging configuration using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON enables JSON output format.
	JSON bool
	// Output is the writer to write logs to. DefaultConfig and FromSettings
	// set it to os.Stderr unless told otherwise.
	Output io.Writer
}

// DefaultConfig returns a logging configuration for interactive use.
// It reads the LOG_LEVEL environment variable to set the logging level.
// Valid values: DEBUG, INFO, WARN, ERROR. Defaults to WARN.
func DefaultConfig() Config {
	level := slog.LevelWarn
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		level = ParseLevel(logLevel)
	}

	return Config{
		Level:  level,
		JSON:   false,
		Output: os.Stderr,
	}
}

// ParseLevel converts a string log level to slog.Level.
// Unknown values map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
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

// FromSettings overlays configured values on DefaultConfig. An empty level
// keeps the LOG_LEVEL or default level; a nil out keeps stderr.
func FromSettings(level string, jsonOutput bool, out io.Writer) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = ParseLevel(level)
	}
	cfg.JSON = jsonOutput
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// Setup initializes the default slog logger with the given configuration.
// Build cfg with DefaultConfig or FromSettings.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
