// Package log provides pageq's structured logging facade and utilities.
//
// # Overview
//
// Logger has four leveled methods taking Fields. Records flow through a
// slog.Handler into a Formatter (text or JSON) and then every configured
// Output. Loggers are passed explicitly; there is no package default.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("mq"), log.Str("policy", "one-per-page"))
//	l.Info("store opened", log.Int("origins", 3))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and multiple outputs (console, file, null). Redaction and
// sampling are applied by the slog handler.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger, use ToStdLogger or
// RedirectStdLog; the CLI uses the latter so storage-engine messages share the
// process formatter.
package log
