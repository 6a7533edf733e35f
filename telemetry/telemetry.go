// Package telemetry defines the structured logging, metrics, and tracing
// contracts used across the agent runtime. The event loop (engine.Agent)
// takes a Logger/Metrics/Tracer through its options rather than reaching
// for a process-global handle directly, and falls back to the defaults
// installed via SetDefault when none is given. The tool sub-loop and hook
// dispatch take no telemetry handles.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations typically delegate to an OTEL-backed logger, but the
// interface is intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// ToolTelemetry captures observability metadata collected during a single
// tool invocation. Common fields provide type safety for standard metrics;
// Extra carries tool-specific data (cache keys, provider response headers).
type ToolTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// ToolUseID correlates this record back to the originating ToolUseBlock.
	ToolUseID string
	// ToolName identifies which tool produced this record.
	ToolName string
	// Retried is true when the tool call was re-issued after an
	// AfterToolCall hook requested a retry.
	Retried bool
	// Extra holds tool-specific metadata not captured by the common fields.
	Extra map[string]any
}

var (
	defaultLogger  Logger  = NoopLogger{}
	defaultMetrics Metrics = NoopMetrics{}
	defaultTracer  Tracer  = NoopTracer{}
)

// SetDefault installs the process-wide Logger/Metrics/Tracer used by
// components constructed without an explicit telemetry option. Passing nil
// for any argument leaves that handle unchanged. Absence of a call leaves
// every handle as its no-op implementation, so the runtime degrades
// gracefully when telemetry is never configured.
func SetDefault(l Logger, m Metrics, t Tracer) {
	if l != nil {
		defaultLogger = l
	}
	if m != nil {
		defaultMetrics = m
	}
	if t != nil {
		defaultTracer = t
	}
}

// DefaultLogger returns the current process-wide Logger.
func DefaultLogger() Logger { return defaultLogger }

// DefaultMetrics returns the current process-wide Metrics.
func DefaultMetrics() Metrics { return defaultMetrics }

// DefaultTracer returns the current process-wide Tracer.
func DefaultTracer() Tracer { return defaultTracer }
