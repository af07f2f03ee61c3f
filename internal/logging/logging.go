// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/acme/ganttsync/internal/config"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Setup returns a logger writing to stderr (console or JSON) and, when
// c.File is set, to a rotated file as JSON. The returned Closer releases
// the file sink and is safe to call when there is none.
func Setup(c config.LogConfig) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	var out io.Writer = os.Stderr
	if c.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
	}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(c.File) != "" {
		_ = os.MkdirAll(filepath.Dir(c.File), 0o755)
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    max(c.MaxSizeMB, 1),
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj
	}

	logger := zerolog.New(out).
		Level(ParseLevel(c.Level)).
		With().Timestamp().Str("service", "ganttsync").
		Logger()
	return logger, closer
}

// ParseLevel maps a config level name to a zerolog level. Unknown names
// mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
