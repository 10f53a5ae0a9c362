// Package logging provides the structured logger used by the solana-tss tool
package logging

import (
	"fmt"
	"io"
	"log/slog"
)

const redactedPlaceholder = "[redacted]"

// Logger wraps slog with the small surface the command-line tool needs
type Logger struct {
	logger *slog.Logger
	debug  bool
}

// NewLoggerTo creates a text logger writing to w, at debug level when debug is set
func NewLoggerTo(w io.Writer, debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{
		logger: slog.New(handler),
		debug:  debug,
	}
}

// Slog exposes the underlying slog.Logger, e.g. for audit handlers
func (l *Logger) Slog() *slog.Logger { return l.logger }

// With returns a logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), debug: l.debug}
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	if l.debug {
		l.logger.Debug(msg, args...)
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	if l.debug {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error
func (l *Logger) Error(err error, args ...any) {
	l.logger.Error(err.Error(), args...)
}

// MaybeError logs an error if it's not nil
func (l *Logger) MaybeError(err error) {
	if err != nil {
		l.logger.Error(err.Error())
	}
}

// Redacted marks an attribute whose value is secret and was left out
func Redacted(key string) slog.Attr {
	return slog.String(key, redactedPlaceholder)
}
