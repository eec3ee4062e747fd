// Package logger builds the application's slog logger: JSON to a rotating
// file in production, text to stdout in development and tests.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"brandpulse/internal/config"
)

// New builds a logger from the application config.
func New(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(cfg.LogLevel)}

	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(rotatingWriter(cfg), opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func rotatingWriter(cfg *config.Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogsDirectory, cfg.AppName+".log"),
		MaxSize:    cfg.LogsMaxSizeInMb,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAge:     cfg.LogsMaxAgeInDays,
		Compress:   true,
	}
}

func level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
