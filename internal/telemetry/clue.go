package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// clueLogger delegates to goa.design/clue/log, reading formatting and
	// debug settings from the context (set up by the caller via
	// log.Context; the CLI entrypoint uses the no-op Handle instead).
	clueLogger struct{}

	// otelMetrics delegates to the global OTel MeterProvider.
	otelMetrics struct {
		meter metric.Meter
	}

	// otelTracer delegates to the global OTel TracerProvider.
	otelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return clueLogger{} }

// NewOTelMetrics constructs a Metrics recorder over the global MeterProvider.
func NewOTelMetrics() Metrics {
	return &otelMetrics{meter: otel.Meter("github.com/agentworkbench/workbench")}
}

// NewOTelTracer constructs a Tracer over the global TracerProvider.
func NewOTelTracer() Tracer {
	return &otelTracer{tracer: otel.Tracer("github.com/agentworkbench/workbench")}
}

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fs := append([]log.Fielder{log.KV{K: "severity", V: "warning"}}, fielders(msg, keyvals)...)
	log.Warn(ctx, fs...)
}

func (clueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	fs := make([]log.Fielder, 0, len(keyvals)/2+1)
	fs = append(fs, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fs = append(fs, log.KV{K: k, V: keyvals[i+1]})
	}
	return fs
}

func (m *otelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *otelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *otelMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTel has no synchronous gauge instrument; a histogram suffixed
	// "_gauge" is the teacher's own fallback for this case.
	h, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...KV) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(kvAttrs(attrs)...))
	return newCtx, &otelSpan{span: span}
}

func (t *otelTracer) Span(ctx context.Context) Span {
	return &otelSpan{span: trace.SpanFromContext(ctx)}
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) AddEvent(name string, attrs ...KV) {
	s.span.AddEvent(name, trace.WithAttributes(kvAttrs(attrs)...))
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func kvAttrs(kvs []KV) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		switch v := kv.V.(type) {
		case string:
			attrs = append(attrs, attribute.String(kv.K, v))
		case int:
			attrs = append(attrs, attribute.Int(kv.K, v))
		case int64:
			attrs = append(attrs, attribute.Int64(kv.K, v))
		case float64:
			attrs = append(attrs, attribute.Float64(kv.K, v))
		case bool:
			attrs = append(attrs, attribute.Bool(kv.K, v))
		default:
			attrs = append(attrs, attribute.String(kv.K, ""))
		}
	}
	return attrs
}
