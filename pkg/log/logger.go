package log

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Level is a log severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields is the structured context of an Entry.
type Fields map[string]interface{}

// Keys with a fixed meaning across pageq.
const (
	ComponentKey = "component"
	TraceIDKey   = "trace_id"
	SpanIDKey    = "span_id"
)

// Entry is one record handed to a Formatter.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
}

// Logger is the leveled, structured logger passed explicitly through pageq.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child that adds fields to every entry.
	With(fields ...Field) Logger
	// WithContext returns a child tagged with the trace and span ids of the
	// span active on ctx. Without a span it returns the receiver.
	WithContext(ctx context.Context) Logger
}

// Formatter renders an entry.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption configures a BaseLogger.
type LoggerOption func(*BaseLogger)

// BaseLogger is the Logger built by NewLogger and ApplyConfig.
type BaseLogger struct {
	level      Level
	formatter  Formatter
	outputs    []Output
	slogLogger *slog.Logger
}

// SpanFields returns trace_id and span_id for the span active on ctx, or nil.
func SpanFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{Str(TraceIDKey, sc.TraceID().String()), Str(SpanIDKey, sc.SpanID().String())}
}

// NewLogger builds a logger writing JSON to stderr unless options say
// otherwise.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{level: InfoLevel, formatter: &JSONFormatter{}}
	for _, option := range options {
		option(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{&ConsoleOutput{}}
	}
	l.slogLogger = slog.New(newBridgeHandler(l))
	return l
}

func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level = level }
}

func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output; entries go to every output in order.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}
