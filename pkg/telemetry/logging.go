// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// ContextAttr copies a string value carried by the context into every
// record logged with that context, under Key.
type ContextAttr struct {
	Key   string
	Value func(context.Context) (string, bool)
}

// ConfigureSlog sets the global slog logger. Records logged with a context
// gain trace_id, span_id and the given context attributes.
func ConfigureSlog(output io.Writer, level, format string, attrs ...ContextAttr) *slog.Logger {
	logger := NewLogger(output, level, format, attrs...)
	slog.SetDefault(logger)
	return logger
}

// NewLogger is ConfigureSlog without touching the global default.
func NewLogger(output io.Writer, level, format string, attrs ...ContextAttr) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	extract := append([]ContextAttr{
		{Key: "trace_id", Value: traceID},
		{Key: "span_id", Value: spanID},
	}, attrs...)
	return slog.New(&contextHandler{next: base, extract: extract})
}

// Component returns logger scoped to a named component, or the default
// logger scoped the same way when logger is nil.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}

type contextHandler struct {
	next    slog.Handler
	extract []ContextAttr
	// bound holds top-level keys already attached through WithAttrs.
	bound map[string]bool
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		for _, a := range h.extract {
			if h.bound[a.Key] || recordHasAttr(record, a.Key) {
				continue
			}
			if v, ok := a.Value(ctx); ok {
				record.AddAttrs(slog.String(a.Key, v))
			}
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return &contextHandler{next: h.next.WithAttrs(attrs), extract: h.extract, bound: bound}
}

// WithGroup drops context extraction: attributes added inside a group
// would otherwise be nested under it.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func traceID(ctx context.Context) (string, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc.TraceID().String(), sc.IsValid()
}

func spanID(ctx context.Context) (string, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc.SpanID().String(), sc.IsValid()
}

func recordHasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
