// Package telemetry defines the logging, metrics, and tracing seam that
// every other component is constructed with. Nothing in this module reaches
// for a package-level logger; callers inject a Logger/Metrics/Tracer triple
// so tests can substitute no-op or recording fakes.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Logger emits structured log lines keyed by alternating (key, value) pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges tagged by (key, value) pairs.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer starts and resumes spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...KV) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span is a single unit of traced work.
type Span interface {
	End()
	AddEvent(name string, attrs ...KV)
	SetStatus(code codes.Code, description string)
	RecordError(err error)
}

// KV is a single structured attribute attached to a log line or span event.
type KV struct {
	K string
	V any
}

// Handle bundles the three telemetry seams so they can be passed around and
// embedded as a single constructor argument.
type Handle struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Handle whose three members discard everything. Useful as a
// default when a caller does not wire up the otel-backed Handle.
func Noop() Handle {
	return Handle{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
