// Package logging provides slog-based loggers with per-service log files.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/karimogit/GBIF3D/internal/conf"
)

var structuredLogger *slog.Logger

// Init initializes the default structured logger writing JSON to stdout.
func Init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	structuredLogger = slog.New(handler)
	slog.SetDefault(structuredLogger)
}

// SetLevel replaces the default logger with one at the given minimum level.
func SetLevel(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	structuredLogger = slog.New(handler)
	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured structured logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	return structuredLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return slog.Default().With("service", serviceName)
	}
	return structuredLogger.With("service", serviceName)
}

// NewFileLogger creates a slog.Logger writing JSON logs to the given file
// using lumberjack for rotation based on the loaded log configuration. All
// records carry a 'service' attribute. Returns the logger, a closer for the
// underlying writer, and an error if setup fails.
func NewFileLogger(filePath, serviceName string, level slog.Leveler) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename: filePath,
	}

	// Defaults, overridden by config below
	maxSizeMB := 10
	maxBackups := 3
	maxAge := 28 // days

	if settings := conf.Setting(); settings != nil {
		logConf := settings.Log
		if !logConf.Enabled {
			// File logging disabled, discard output but keep the API intact
			handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: level})
			return slog.New(handler).With("service", serviceName), func() error { return nil }, nil
		}
		if mb := int(logConf.MaxSize / (1024 * 1024)); mb > 0 {
			maxSizeMB = mb
		}
		if logConf.MaxBackups > 0 {
			maxBackups = logConf.MaxBackups
		}
		switch logConf.Rotation {
		case conf.RotationDaily:
			maxAge = 1
			maxBackups = 30
		case conf.RotationWeekly:
			maxAge = 7
			maxBackups = 4
		case conf.RotationSize:
			// size-based rotation uses maxSizeMB as-is
		default:
			slog.Warn("Unknown log rotation type in config, using size-based defaults",
				"configuredType", logConf.Rotation)
		}
	}

	logWriter.MaxSize = maxSizeMB
	logWriter.MaxBackups = maxBackups
	logWriter.MaxAge = maxAge

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: level})
	logger := slog.New(fileHandler).With("service", serviceName)

	return logger, logWriter.Close, nil
}
