package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating an OpenTelemetry span per
// event.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g. "tick_start", "node_eval")
//   - Attributes: graph_id, engine_time, node_id, and all Meta fields
//   - Status: error when Meta["error"] is present
//
// Spans are ended immediately; engine events represent points in the
// tick, not durations. Tick and node latencies travel as "duration_ms"
// attributes instead.
//
// Usage:
//
//	tracer := otel.Tracer("hgraph")
//	emitter := emit.NewOTelEmitter(tracer)
//	engine := graph.NewGraphEngine(g, mode, graph.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter over the given tracer, typically
// otel.Tracer("hgraph").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends a span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()
	o.annotate(span, event)
}

// EmitBatch creates a span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush is a no-op; span export is governed by the tracer provider's
// processor.
func (*OTelEmitter) Flush(context.Context) error { return nil }

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("graph_id", event.GraphID),
	}
	if !event.EngineTime.IsZero() {
		attrs = append(attrs, attribute.String("engine_time", formatEngineTime(event.EngineTime)))
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, metaAttribute(k, v))
	}
	span.SetAttributes(attrs...)

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", errVal))
	}
}

func metaAttribute(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case bool:
		return attribute.Bool(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, fmt.Sprintf("%v", val))
	}
}
