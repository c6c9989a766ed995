// Package logger provides component-tagged structured logging for taskpulse.
// Every log line carries a component name (api, ws, store, importer, ...) so
// output from concurrent subsystems stays attributable.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar)
	log   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// SetLevel changes the minimum level. Accepts debug, info, warn, error;
// unknown values fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetHandler replaces the backing slog handler.
func SetHandler(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	log = slog.New(h)
}

func emit(l slog.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	lg := log
	mu.RUnlock()

	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "component", component)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	lg.Log(context.Background(), l, msg, attrs...)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(slog.LevelDebug, component, msg, nil) }

// DebugCF logs a debug message with fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(slog.LevelDebug, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(slog.LevelInfo, component, msg, nil) }

// InfoCF logs an info message with fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(slog.LevelInfo, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { emit(slog.LevelWarn, component, msg, nil) }

// WarnCF logs a warning with fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(slog.LevelWarn, component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { emit(slog.LevelError, component, msg, nil) }

// ErrorCF logs an error with fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(slog.LevelError, component, msg, fields)
}
