package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sonalabs/sona-tts/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewJSONLoggerLogs(t *testing.T) {
	cfg := config.LoggingConfig{Level: "debug", Format: "json"}
	logger := New(cfg, "production")
	if logger == nil {
		t.Fatal("expected a logger")
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestNewWithFileSink(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		File: config.FileLogConfig{
			Path:      filepath.Join(t.TempDir(), "sona.log"),
			MaxSizeMB: 1,
		},
	}
	logger := New(cfg, "production")
	logger.Info("file sink smoke test")
	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("expected debug to be disabled at info level")
	}
}
