// Package logging builds the process-wide slog logger from configuration:
// JSON for machines, tint for terminals, optional rotating file sink.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sonalabs/sona-tts/internal/config"
)

// New builds the root logger. The environment only influences the "auto"
// format choice: development on a terminal gets tint, everything else JSON.
func New(cfg config.LoggingConfig, environment string) *slog.Logger {
	level := ParseLevel(cfg.Level)

	out := io.Writer(os.Stderr)
	if cfg.File.Path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	format := cfg.Format
	if format == "auto" {
		if environment == "development" && isTerminal() {
			format = "console"
		} else {
			format = "json"
		}
	}

	var handler slog.Handler
	switch format {
	case "console":
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal() || cfg.File.Path != "",
		})
	default:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// ParseLevel maps a config level string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}
