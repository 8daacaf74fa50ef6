// Package logger provides the logging abstraction used by go-agilis, so that callers can
// plug in their preferred logging framework or a plain callback.
//
// The Logger interface defines methods for logging messages at various severity levels
// (Debug, Info, Warn, Error) and supports structured logging with key-value pairs.
//
// Log Levels:
//
//   - DebugLevel:  Frame-level traffic, pacing delays and raw replies.
//   - InfoLevel:   One line per device command.
//   - WarnLevel:   Recoverable anomalies. This is the default threshold.
//   - ErrorLevel:  Failed exchanges, validation rejections and parse failures.
//   - NoneLevel:   Disables all output.
package logger

import "strings"

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel logs are voluminous: every frame sent and received.
	DebugLevel Level = iota - 1
	// InfoLevel logs one line per device command.
	InfoLevel
	// WarnLevel is the default logging priority.
	WarnLevel
	// ErrorLevel logs are high-priority. A healthy link shouldn't generate any.
	ErrorLevel
	// NoneLevel suppresses every message.
	NoneLevel
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARNING"
	case ErrorLevel:
		return "ERROR"
	case NoneLevel:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a textual level name into a Level.
// It accepts "debug", "info", "warn", "warning", "error" and "none", case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "none", "off":
		return NoneLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger defines a common interface for logging.
// This interface is used throughout the go-agilis packages, enabling integration with
// various logging frameworks.
type Logger interface {
	// Debug logs a message at DebugLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Error(msg string, keysAndValues ...any)
	// With creates a child logger and adds structured context to it.
	// Key-values added to the child don't affect the parent, and vice versa.
	// The child shares the parent's level.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
