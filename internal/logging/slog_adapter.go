// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler is an slog.Handler that writes through zerolog. The supervisor
// tree's sutureslog hook logs through it.
//
// Attributes passed to WithAttrs are rendered into a child zerolog logger
// once, so per-record cost only covers the record's own attributes.
type SlogHandler struct {
	logger zerolog.Logger
	prefix string // dotted group path, "" or ending in "."
}

// NewSlogHandler wraps logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandler(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger returns an slog.Logger over the global logger, tagged with
// component.
//
//	supervisorLog := logging.NewSlogLogger("supervisor")
func NewSlogLogger(component string) *slog.Logger {
	return slog.New(NewSlogHandler(WithComponent(component)))
}

// Enabled reports whether records at level would be written.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	zl := zerologLevel(level)
	return zl >= h.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

// Handle writes the record.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))
	if event == nil {
		return nil
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(eventFields{event}, h.prefix, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler whose logger already carries attrs.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	lc := h.logger.With()
	fields := contextFields{&lc}
	for _, attr := range attrs {
		appendAttr(fields, h.prefix, attr)
	}
	return &SlogHandler{logger: lc.Logger(), prefix: h.prefix}
}

// WithGroup returns a handler that prefixes later keys with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{logger: h.logger, prefix: h.prefix + name + "."}
}

// fieldSink abstracts zerolog.Event and zerolog.Context, which expose the
// same typed setters but share no interface.
type fieldSink interface {
	str(k, v string)
	i64(k string, v int64)
	u64(k string, v uint64)
	f64(k string, v float64)
	boolean(k string, v bool)
	value(k string, v interface{})
}

type eventFields struct{ e *zerolog.Event }

func (f eventFields) str(k, v string)               { f.e.Str(k, v) }
func (f eventFields) i64(k string, v int64)         { f.e.Int64(k, v) }
func (f eventFields) u64(k string, v uint64)        { f.e.Uint64(k, v) }
func (f eventFields) f64(k string, v float64)       { f.e.Float64(k, v) }
func (f eventFields) boolean(k string, v bool)      { f.e.Bool(k, v) }
func (f eventFields) value(k string, v interface{}) { f.e.Interface(k, v) }

type contextFields struct{ c *zerolog.Context }

func (f contextFields) str(k, v string)               { *f.c = f.c.Str(k, v) }
func (f contextFields) i64(k string, v int64)         { *f.c = f.c.Int64(k, v) }
func (f contextFields) u64(k string, v uint64)        { *f.c = f.c.Uint64(k, v) }
func (f contextFields) f64(k string, v float64)       { *f.c = f.c.Float64(k, v) }
func (f contextFields) boolean(k string, v bool)      { *f.c = f.c.Bool(k, v) }
func (f contextFields) value(k string, v interface{}) { *f.c = f.c.Interface(k, v) }

func appendAttr(sink fieldSink, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := prefix + attr.Key

	switch attr.Value.Kind() {
	case slog.KindString:
		sink.str(key, attr.Value.String())
	case slog.KindInt64:
		sink.i64(key, attr.Value.Int64())
	case slog.KindUint64:
		sink.u64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		sink.f64(key, attr.Value.Float64())
	case slog.KindBool:
		sink.boolean(key, attr.Value.Bool())
	case slog.KindDuration:
		sink.str(key, attr.Value.Duration().String())
	case slog.KindTime:
		sink.str(key, attr.Value.Time().Format(zerolog.TimeFieldFormat))
	case slog.KindGroup:
		// An inline group (empty key) flattens into the current prefix.
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = key + "."
		}
		for _, ga := range attr.Value.Group() {
			appendAttr(sink, groupPrefix, ga)
		}
	default:
		v := attr.Value.Any()
		if err, ok := v.(error); ok {
			sink.str(key, err.Error())
			return
		}
		sink.value(key, v)
	}
}

// zerologLevel maps slog levels, including the in-between values slog
// allows, onto zerolog's.
func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
