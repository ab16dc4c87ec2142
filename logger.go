package imap

import (
	"log/slog"
	"os"
)

// Logger defines the minimal logging interface used by the IMAP session.
//
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithAttrs(args ...any) Logger
}

// DefaultLogger returns the built-in slog logger writing text to stderr.
func DefaultLogger() Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return SlogLogger(slog.New(handler))
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return nil
	}
	return slogAdapter{logger: logger}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }

func (s slogAdapter) Info(msg string, args ...any) { s.logger.Info(msg, args...) }

func (s slogAdapter) Warn(msg string, args ...any) { s.logger.Warn(msg, args...) }

func (s slogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s slogAdapter) WithAttrs(args ...any) Logger {
	return slogAdapter{logger: s.logger.With(args...)}
}

// discardLogger drops everything. Used by tests.
type discardLogger struct{}

func (discardLogger) Debug(string, ...any)       {}
func (discardLogger) Info(string, ...any)        {}
func (discardLogger) Warn(string, ...any)        {}
func (discardLogger) Error(string, ...any)       {}
func (d discardLogger) WithAttrs(...any) Logger { return d }

// DiscardLogger returns a Logger that drops every entry.
func DiscardLogger() Logger { return discardLogger{} }

// log returns the session logger with per-connection context.
func (d *Dialer) log() Logger {
	logger := d.opts.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	args := []any{"component", "imap/conform", "conn", d.ConnNum}
	if d.Folder != "" {
		args = append(args, "mailbox", d.Folder)
	}
	return logger.WithAttrs(args...)
}

// debugLog emits a debug log entry when verbose logging is enabled.
func (d *Dialer) debugLog(msg string, args ...any) {
	if !d.opts.Verbose {
		return
	}
	d.log().Debug(msg, args...)
}
