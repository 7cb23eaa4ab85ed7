package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// log records the caller of Debug/Info/Warn/Error, not this frame.
func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if l.level > level {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs(fields)...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := *l
	child.slogLogger = l.slogLogger.With(attrsToAny(attrs(fields))...)
	return &child
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.With(SpanFields(ctx)...)
}

// Close closes every output and reports the first failure.
func (l *BaseLogger) Close() error {
	var firstErr error
	for _, out := range l.outputs {
		if err := out.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("log: close output: %w", err)
		}
	}
	return firstErr
}
