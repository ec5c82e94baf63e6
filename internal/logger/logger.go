// Package logger provides structured logging for the worker.
package logger

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel selects the minimum severity that is emitted.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Logger is the structured logging interface the rest of the worker
// depends on. Key/value pairs follow the charmbracelet/log convention.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// Config controls logger construction.
type Config struct {
	Level  LogLevel
	Output io.Writer
	JSON   bool
}

// DefaultConfig returns the worker's default logging configuration:
// info-level text logs on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  InfoLevel,
		Output: os.Stderr,
		JSON:   false,
	}
}

func (l LogLevel) toCharmlogLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

type loggerImpl struct {
	charmLogger *charmlog.Logger
}

func (l *loggerImpl) Debug(msg string, keyvals ...any) { l.charmLogger.Debug(msg, keyvals...) }
func (l *loggerImpl) Info(msg string, keyvals ...any)  { l.charmLogger.Info(msg, keyvals...) }
func (l *loggerImpl) Warn(msg string, keyvals ...any)  { l.charmLogger.Warn(msg, keyvals...) }
func (l *loggerImpl) Error(msg string, keyvals ...any) { l.charmLogger.Error(msg, keyvals...) }

func (l *loggerImpl) With(keyvals ...any) Logger {
	return &loggerImpl{charmLogger: l.charmLogger.With(keyvals...)}
}

// New creates a Logger from cfg. A nil cfg yields DefaultConfig().
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	charmLogger := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           cfg.Level.toCharmlogLevel(),
	})
	if cfg.JSON {
		charmLogger.SetFormatter(charmlog.JSONFormatter)
	}
	return &loggerImpl{charmLogger: charmLogger}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger {
	return New(&Config{Level: ErrorLevel, Output: io.Discard})
}
