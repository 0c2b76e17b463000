package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context stored next to queued work (outbox
// rows, reminder jobs) so the span that enqueued it can be resumed later.
type TraceContext struct {
	Parent string
	State  string
}

// CaptureTraceContext injects the active span of ctx with the global propagator.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier["traceparent"], State: carrier["tracestate"]}
}

func (t TraceContext) Empty() bool {
	return t.Parent == "" && t.State == ""
}

// Attach returns ctx carrying the stored span as remote parent.
func (t TraceContext) Attach(ctx context.Context) context.Context {
	if t.Empty() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": t.Parent,
		"tracestate":  t.State,
	})
}
