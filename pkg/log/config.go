package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declares a logger. Zero values give info-level text on stderr.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text|json
	// Outputs lists "console", "null" or a file path. Empty means console.
	Outputs []string `json:"outputs,omitempty"`
	// RedactKeys replaces the values of matching fields with [REDACTED].
	RedactKeys []string `json:"redactKeys,omitempty"`
	// SampleInitial/SampleThereafter keep the first N occurrences of each
	// message and then one in every M.
	SampleInitial    int  `json:"sampleInitial,omitempty"`
	SampleThereafter int  `json:"sampleThereafter,omitempty"`
	ShowCaller       bool `json:"showCaller,omitempty"`
}

// ParseLevel accepts debug|info|warn|warning|error|fatal in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a logger from cfg.
func ApplyConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.ShowCaller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.ShowCaller}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, name := range cfg.Outputs {
		switch name {
		case "", "console", "stderr":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			fo, err := NewFileOutput(name)
			if err != nil {
				return nil, fmt.Errorf("log: open output %s: %w", name, err)
			}
			opts = append(opts, WithOutput(fo))
		}
	}

	logger := NewLogger(opts...).(*BaseLogger)
	if len(cfg.RedactKeys) > 0 || cfg.SampleThereafter > 0 {
		h := newBridgeHandler(logger).
			withRedactions(cfg.RedactKeys).
			withSampler(cfg.SampleInitial, cfg.SampleThereafter)
		logger.slogLogger = slog.New(h)
	}
	return logger, nil
}
