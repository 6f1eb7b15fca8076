// Package logging provides structured logging for the buzzcam application.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, component-based loggers, and an
// optional append-only log file on the local storage tier so that field
// deployments keep a diagnostic trail next to the recordings.
//
// Loggers resolve the active output handler at log time, so a component
// logger created at package init still honors a later Init or InitWithFile
// call.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("transfer")
//	log.Info("cycle complete", "files", 3)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger is the global logger instance. It delegates to whichever handler
// the most recent Init call installed.
var Logger = slog.New(&dynamicHandler{})

// current is the installed output handler.
var current atomic.Pointer[slog.Handler]

// logFile is the open log file, if file logging is enabled.
var logFile *os.File

func init() {
	setHandler(newHandler(os.Stdout, slog.LevelInfo, false))
}

func setHandler(h slog.Handler) {
	current.Store(&h)
}

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	setHandler(newHandler(os.Stdout, level, jsonFormat))
	slog.SetDefault(Logger)
}

// InitWithFile initializes the global logger writing to both stdout and an
// append-only log file. The file is created if it does not exist. Component
// loggers created before this call pick up the new destination too.
func InitWithFile(level slog.Level, jsonFormat bool, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f

	setHandler(newHandler(io.MultiWriter(os.Stdout, f), level, jsonFormat))
	slog.SetDefault(Logger)
	return nil
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	setHandler(handler)
	slog.SetDefault(Logger)
}

// Close flushes and closes the log file, if one is open.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func newHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// dynamicHandler forwards every record to the handler installed by the most
// recent Init call. Attributes and groups added via With are kept here and
// replayed onto the installed handler at log time, so derived loggers
// survive handler swaps.
type dynamicHandler struct {
	attrs  []slog.Attr
	groups []string
}

// resolve returns the installed handler with this logger's attributes and
// groups applied.
func (d *dynamicHandler) resolve() slog.Handler {
	h := *current.Load()
	if len(d.attrs) > 0 {
		h = h.WithAttrs(d.attrs)
	}
	for _, g := range d.groups {
		h = h.WithGroup(g)
	}
	return h
}

func (d *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*current.Load()).Enabled(ctx, level)
}

func (d *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	return d.resolve().Handle(ctx, r)
}

func (d *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dynamicHandler{
		attrs:  append(append([]slog.Attr{}, d.attrs...), attrs...),
		groups: d.groups,
	}
}

func (d *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{
		attrs:  d.attrs,
		groups: append(append([]string{}, d.groups...), name),
	}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("retention")
//	log.Info("sweep complete") // Output: time=... level=INFO component=retention msg=...
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

// ParseLevel parses a level string (debug, info, warn, error) into a
// slog.Level. Unknown strings default to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
