// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/seckatie/pocketsync/internal/config"
)

// Logger wraps a slog.Logger whose level can change at runtime.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger from cfg. With cfg.File set, output goes to a
// rotating file instead of stderr.
func New(cfg config.LogConfig) (*Logger, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		w, closer = lj, lj
	}
	return NewWithWriter(cfg, w, closer)
}

// NewWithWriter builds a logger writing to w. closer, if non-nil, is closed
// by Close.
func NewWithWriter(cfg config.LogConfig, w io.Writer, closer io.Closer) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return &Logger{Logger: slog.New(handler), level: level, closer: closer}, nil
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	if l.level.Level() != lvl {
		l.level.Set(lvl)
		l.Info("log level changed", "level", lvl.String())
	}
	return nil
}

func (l *Logger) Level() slog.Level { return l.level.Level() }

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
