// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel is the log level used when not configured.
const DefaultLevel = slog.LevelInfo

const (
	maxFileSizeMB  = 50
	maxFileBackups = 5
	maxFileAgeDays = 28
)

// Options selects the level, console format and optional log file.
type Options struct {
	Level  string // debug, info, warn or error
	Format string // text or json
	File   string // rotated JSON log file; empty disables it

	// Console defaults to os.Stderr.
	Console io.Writer
}

// ParseLevel converts a string log level to slog.Level.
// Returns (DefaultLevel, false) if the string is not recognized.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// New builds a logger. When opts.File is set, records are fanned out to the
// console handler and a JSON handler writing to a size-rotated file; the
// returned closer closes that file. The closer is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", opts.Level)
	}
	hopts := &slog.HandlerOptions{Level: level}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	var consoleHandler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		consoleHandler = slog.NewTextHandler(console, hopts)
	case "json":
		consoleHandler = slog.NewJSONHandler(console, hopts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxFileBackups,
		MaxAge:     maxFileAgeDays,
		Compress:   true,
	}
	handler := slogmulti.Fanout(
		consoleHandler,
		slog.NewJSONHandler(file, hopts),
	)
	return slog.New(handler), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
