package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer starts spans for watchlist health checks.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a tracer on the given provider, or the global one when tp is nil.
func NewBusinessTracer(tp trace.TracerProvider) *BusinessTracer {
	if tp == nil {
		return &BusinessTracer{tracer: Tracer(ServiceName + "/healthcheck")}
	}
	return &BusinessTracer{tracer: tp.Tracer(ServiceName + "/healthcheck")}
}

// TraceHealthPass starts the span covering one pass over the watchlist.
func (bt *BusinessTracer) TraceHealthPass(ctx context.Context, jobID string, items int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "health_check.pass", trace.WithAttributes(
		attribute.String("refresh.job_id", jobID),
		attribute.Int("watchlist.items", items),
	))
}

// TraceHealthCheck starts the span for one ticker.
func (bt *BusinessTracer) TraceHealthCheck(ctx context.Context, ticker string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "health_check.ticker", trace.WithAttributes(
		attribute.String("ticker", ticker),
	))
}

// RecordStage adds a stage verdict to span as an event.
func (bt *BusinessTracer) RecordStage(span trace.Span, stage string, pass bool, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.Bool("pass", pass),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	span.AddEvent("stage_evaluated", trace.WithAttributes(attrs...))
}

// RecordOutcome sets the final outcome on span. err marks the span as failed.
func (bt *BusinessTracer) RecordOutcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("health_check.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, outcome)
}
