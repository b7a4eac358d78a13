// Package engineobs provides OpenTelemetry tracing and metrics helpers.
// Of the engine's components, only the Connection Pool records events
// through it.
package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/gristlabs/gristmux/src/engine"
	instrumentationVersion = "0.1.0"
)

// Config controls telemetry collection.
type Config struct {
	// EnableTracing enables OpenTelemetry distributed tracing.
	EnableTracing bool
	// EnableMetrics enables OpenTelemetry metrics collection.
	EnableMetrics bool
	// Attributes are additional attributes added to every span and metric.
	Attributes []attribute.KeyValue
}

// DefaultConfig returns observability disabled by default.
func DefaultConfig() *Config {
	return &Config{
		EnableTracing: false,
		EnableMetrics: false,
		Attributes: []attribute.KeyValue{
			attribute.String("db.system", "gristmux"),
		},
	}
}

// Instruments holds the OpenTelemetry instruments used across the engine.
type Instruments struct {
	tracer trace.Tracer
	meter  metric.Meter

	QueryDuration    metric.Float64Histogram
	QueryCount       metric.Int64Counter
	QueryErrors      metric.Int64Counter
	RowsReturned     metric.Int64Counter
	PoolInUse        metric.Int64UpDownCounter
	PoolTotal        metric.Int64UpDownCounter
	CallsDispatched  metric.Int64Counter
	ChunksSent       metric.Int64Counter
	ActionsApplied   metric.Int64Counter
	ActionApplyError metric.Int64Counter
}

// New initializes the OpenTelemetry instruments described by cfg. Returns
// nil if both tracing and metrics are disabled.
func New(cfg *Config) *Instruments {
	if cfg == nil || (!cfg.EnableTracing && !cfg.EnableMetrics) {
		return nil
	}

	tracer := otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
	meter := otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	in := &Instruments{tracer: tracer, meter: meter}

	var err error
	in.QueryDuration, err = meter.Float64Histogram("engine.query.duration", metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}
	in.QueryCount, err = meter.Int64Counter("engine.query.count")
	if err != nil {
		otel.Handle(err)
	}
	in.QueryErrors, err = meter.Int64Counter("engine.query.errors")
	if err != nil {
		otel.Handle(err)
	}
	in.RowsReturned, err = meter.Int64Counter("engine.query.rows")
	if err != nil {
		otel.Handle(err)
	}
	in.PoolInUse, err = meter.Int64UpDownCounter("engine.pool.in_use")
	if err != nil {
		otel.Handle(err)
	}
	in.PoolTotal, err = meter.Int64UpDownCounter("engine.pool.total")
	if err != nil {
		otel.Handle(err)
	}
	in.CallsDispatched, err = meter.Int64Counter("engine.rpc.calls")
	if err != nil {
		otel.Handle(err)
	}
	in.ChunksSent, err = meter.Int64Counter("engine.rpc.chunks")
	if err != nil {
		otel.Handle(err)
	}
	in.ActionsApplied, err = meter.Int64Counter("engine.apply.actions")
	if err != nil {
		otel.Handle(err)
	}
	in.ActionApplyError, err = meter.Int64Counter("engine.apply.errors")
	if err != nil {
		otel.Handle(err)
	}

	return in
}

// SpanHandle tracks a single in-flight query span.
type SpanHandle struct {
	span      trace.Span
	startTime time.Time
}

// StartQuerySpan begins a span for a query, a no-op if instruments is nil or
// tracing disabled.
func (in *Instruments) StartQuerySpan(ctx context.Context, cfg *Config, tableID string) (context.Context, *SpanHandle) {
	if in == nil || cfg == nil || !cfg.EnableTracing {
		return ctx, &SpanHandle{startTime: time.Now()}
	}
	attrs := append(append([]attribute.KeyValue{}, cfg.Attributes...), attribute.String("engine.table", tableID))
	ctx, span := in.tracer.Start(ctx, "engine.query", trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindServer))
	return ctx, &SpanHandle{span: span, startTime: time.Now()}
}

// FinishQuerySpan records duration/outcome metrics and ends the span.
func (in *Instruments) FinishQuerySpan(h *SpanHandle, cfg *Config, rows int, err error) {
	if h == nil {
		return
	}
	duration := time.Since(h.startTime)

	if in != nil && cfg != nil && cfg.EnableMetrics {
		attrs := metric.WithAttributes(cfg.Attributes...)
		in.QueryDuration.Record(context.Background(), duration.Seconds(), attrs)
		if err != nil {
			in.QueryErrors.Add(context.Background(), 1, attrs)
		} else {
			in.QueryCount.Add(context.Background(), 1, attrs)
			if rows > 0 {
				in.RowsReturned.Add(context.Background(), int64(rows), attrs)
			}
		}
	}

	if h.span != nil {
		h.span.SetAttributes(
			attribute.Int("engine.query.rows", rows),
			attribute.Float64("engine.query.duration_ms", float64(duration.Nanoseconds())/1e6),
		)
		if err != nil {
			h.span.RecordError(err)
			h.span.SetStatus(codes.Error, err.Error())
		} else {
			h.span.SetStatus(codes.Ok, "")
		}
		h.span.End()
	}
}

// RecordPoolEvent updates pool gauges for acquire/release/create events.
func (in *Instruments) RecordPoolEvent(cfg *Config, event string) {
	if in == nil || cfg == nil || !cfg.EnableMetrics {
		return
	}
	attrs := metric.WithAttributes(cfg.Attributes...)
	switch event {
	case "create":
		in.PoolTotal.Add(context.Background(), 1, attrs)
	case "acquire":
		in.PoolInUse.Add(context.Background(), 1, attrs)
	case "release":
		in.PoolInUse.Add(context.Background(), -1, attrs)
	}
}
