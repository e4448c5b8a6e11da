// Package logger sets up structured logging for the confchat server.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely logs are written
type Options struct {
	Level      string
	File       string // optional rotating file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a JSON slog logger on stdout, teeing into a rotating file when
// opts.File is set. The returned closer flushes the file sink.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	return slog.New(handler), closer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
