// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package logging provides the process-wide zerolog logger for Waymark.
//
// Call Init once from main with the values from config.LoggingConfig, then log
// through the package helpers:
//
//	logging.Info().Str("owner_id", owner).Int("spawned", n).Msg("Personal nodes topped up")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Reservation rejected")
//
// Always terminate chains with .Msg() or .Send(); an unterminated event is
// never written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic, disabled.
	Level string

	// Format is json or console.
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output.
	Timestamp bool

	// Service and Version are stamped on every line when set.
	Service string
	Version string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Service:   "waymark",
		Output:    os.Stderr,
	}
}

var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging works before an explicit Init() call
func init() {
	Init(DefaultConfig())
}

// Init configures the global logger. Later calls replace it.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05.000"}
	}

	lc := zerolog.New(output).With()
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		lc = lc.Str("version", cfg.Version)
	}
	l := lc.Logger()
	current.Store(&l)
}

// ParseLevel maps a level name to zerolog. ok is false for unknown names.
func ParseLevel(level string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "fatal":
		return zerolog.FatalLevel, true
	case "panic":
		return zerolog.PanicLevel, true
	case "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// ValidLevel reports whether level is a recognized level name.
func ValidLevel(level string) bool {
	_, ok := ParseLevel(level)
	return ok
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger replaces the global logger. Tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// WithComponent returns a child logger tagged with component.
//
//	sweepLog := logging.WithComponent("maintenance")
func WithComponent(component string) zerolog.Logger {
	return current.Load().With().Str("component", component).Logger()
}

// Debug starts a new message with debug level.
func Debug() *zerolog.Event { return current.Load().Debug() }

// Info starts a new message with info level.
func Info() *zerolog.Event { return current.Load().Info() }

// Warn starts a new message with warning level.
func Warn() *zerolog.Event { return current.Load().Warn() }

// Error starts a new message with error level.
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal starts a new message with fatal level. os.Exit(1) follows the write.
func Fatal() *zerolog.Event { return current.Load().Fatal() }

// Err starts an error-level message carrying err, or info level when err is nil.
//
//	logging.Err(err).Msg("Expire sweep finished")
func Err(err error) *zerolog.Event { return current.Load().Err(err) }

// NewTestLogger creates a logger that writes to w.
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
