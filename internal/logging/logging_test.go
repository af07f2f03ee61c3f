package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/acme/ganttsync/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ganttsync.log")
	logger, closer := Setup(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	logger.Info().Str("collection", "tasks").Msg("hello")
	logger.Debug().Msg("filtered")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"collection":"tasks"`) {
		t.Errorf("log file = %s, want structured entry", data)
	}
	if strings.Contains(string(data), "filtered") {
		t.Error("debug entry written at info level")
	}
}

func TestSetup_NoFile(t *testing.T) {
	_, closer := Setup(config.LogConfig{Level: "info"})
	if err := closer.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
