package logger

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// SinkFunc receives one rendered log line together with its level.
//
// It is the hook for applications that want the driver's output routed into
// their own logging or UI instead of a slog handler.
type SinkFunc func(level Level, msg string)

// SinkLogger adapts a SinkFunc to the Logger interface.
//
// Messages below the threshold are dropped before rendering. Key-value pairs
// are appended to the message as "key=value" separated by spaces.
type SinkLogger struct {
	sink   SinkFunc
	level  *atomic.Int32
	fields []any
}

var _ Logger = (*SinkLogger)(nil)

// NewSink creates a Logger that forwards every enabled message to fn.
// A nil fn yields a logger that discards everything.
func NewSink(fn SinkFunc, level Level) Logger {
	l := &SinkLogger{
		sink:  fn,
		level: &atomic.Int32{},
	}
	l.level.Store(int32(level))

	return l
}

func (l *SinkLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(DebugLevel, msg, keysAndValues)
}

func (l *SinkLogger) Info(msg string, keysAndValues ...any) {
	l.emit(InfoLevel, msg, keysAndValues)
}

func (l *SinkLogger) Warn(msg string, keysAndValues ...any) {
	l.emit(WarnLevel, msg, keysAndValues)
}

func (l *SinkLogger) Error(msg string, keysAndValues ...any) {
	l.emit(ErrorLevel, msg, keysAndValues)
}

func (l *SinkLogger) With(keyValues ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(keyValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keyValues...)

	return &SinkLogger{
		sink:   l.sink,
		level:  l.level,
		fields: fields,
	}
}

func (l *SinkLogger) Level() Level {
	return Level(l.level.Load())
}

func (l *SinkLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *SinkLogger) emit(level Level, msg string, keysAndValues []any) {
	if l.sink == nil || level < l.Level() || l.Level() >= NoneLevel {
		return
	}

	l.sink(level, render(msg, l.fields, keysAndValues))
}

func render(msg string, groups ...[]any) string {
	var sb strings.Builder
	sb.WriteString(msg)

	for _, kvs := range groups {
		for i := 0; i < len(kvs); i += 2 {
			sb.WriteByte(' ')
			if i+1 >= len(kvs) {
				fmt.Fprintf(&sb, "!BADKEY=%v", kvs[i])
				break
			}
			fmt.Fprintf(&sb, "%v=%v", kvs[i], kvs[i+1])
		}
	}

	return sb.String()
}
