package core

import (
	"io"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with logrus, zap, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogifaceLogger adapts a logiface logger to Logger.
type LogifaceLogger struct {
	L *logiface.Logger[logiface.Event]
}

// NewLogifaceLogger wraps an existing logiface logger.
func NewLogifaceLogger(l *logiface.Logger[logiface.Event]) *LogifaceLogger {
	return &LogifaceLogger{L: l}
}

// NewDefaultLogger returns a Logger writing JSON lines to w (stderr when
// nil) at the given minimum level.
func NewDefaultLogger(w io.Writer, level logiface.Level) *LogifaceLogger {
	if w == nil {
		w = os.Stderr
	}
	l := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
	return NewLogifaceLogger(l)
}

// ParseLevel maps a level name (debug, info, warn, error, off) onto a
// logiface level. Unknown names yield LevelInformational.
func ParseLevel(name string) logiface.Level {
	switch name {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "warn", "warning":
		return logiface.LevelWarning
	case "error", "err":
		return logiface.LevelError
	case "off", "disabled", "none":
		return logiface.LevelDisabled
	default:
		return logiface.LevelInformational
	}
}

func (l *LogifaceLogger) Debug(msg string, fields ...Field) {
	writeFields(l.L.Debug(), fields).Log(msg)
}

func (l *LogifaceLogger) Info(msg string, fields ...Field) {
	writeFields(l.L.Info(), fields).Log(msg)
}

func (l *LogifaceLogger) Warn(msg string, fields ...Field) {
	writeFields(l.L.Warning(), fields).Log(msg)
}

func (l *LogifaceLogger) Error(msg string, fields ...Field) {
	writeFields(l.L.Err(), fields).Log(msg)
}

func writeFields(b *logiface.Builder[logiface.Event], fields []Field) *logiface.Builder[logiface.Event] {
	if !b.Enabled() {
		return b
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			b = b.Str(f.Key, v)
		case int:
			b = b.Int(f.Key, v)
		case int64:
			b = b.Int64(f.Key, v)
		case uint64:
			b = b.Uint64(f.Key, v)
		case bool:
			b = b.Bool(f.Key, v)
		case time.Duration:
			b = b.Dur(f.Key, v)
		case error:
			// logiface writes Err under its own key; other keys keep theirs.
			if f.Key == "error" {
				b = b.Err(v)
			} else {
				b = b.Str(f.Key, v.Error())
			}
		default:
			b = b.Any(f.Key, v)
		}
	}
	return b
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
