package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Logger defines the interface for logging in the Vigil system.
// It provides standard logging levels and a mechanism to add structured context.
type Logger interface {
	// Debug logs a message at the debug level.
	Debug(msg string, args ...any)
	// Info logs a message at the info level.
	Info(msg string, args ...any)
	// Warn logs a message at the warning level.
	Warn(msg string, args ...any)
	// Error logs a message at the error level.
	Error(msg string, args ...any)
	// With returns a new Logger with the given structured context added.
	With(args ...any) Logger
}

// Log is the global logger instance used throughout the application.
// It is initialized with a default JSON handler pointing to stderr, leaving
// stdout to the worker's console notices.
var Log Logger = New(os.Stderr, slog.LevelInfo)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// The second result is false for any other value.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// InitLogger initializes the global Log instance with the specified logging level.
// Unknown levels fall back to info. A nil writer means stderr.
func InitLogger(level string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logLevel, _ := ParseLevel(level)
	Log = New(w, logLevel)
}

// New builds a JSON Logger writing to w. Source file info is included.
func New(w io.Writer, level slog.Level) Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}
	return &wrapper{l: slog.New(slog.NewJSONHandler(w, opts))}
}

type wrapper struct {
	l *slog.Logger
}

func (w *wrapper) Debug(msg string, args ...any) { w.log(slog.LevelDebug, msg, args...) }
func (w *wrapper) Info(msg string, args ...any)  { w.log(slog.LevelInfo, msg, args...) }
func (w *wrapper) Warn(msg string, args ...any)  { w.log(slog.LevelWarn, msg, args...) }
func (w *wrapper) Error(msg string, args ...any) { w.log(slog.LevelError, msg, args...) }
func (w *wrapper) With(args ...any) Logger       { return &wrapper{l: w.l.With(args...)} }

// log records the caller of Debug/Info/Warn/Error as the source, not this file.
func (w *wrapper) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !w.l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // runtime.Callers, log, the level method
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = w.l.Handler().Handle(ctx, r)
}

// Personal.AI order the ending
