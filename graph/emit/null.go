package emit

import "context"

// NullEmitter implements Emitter by discarding all events.
//
// Use it when observability is not needed: benchmarks, tests that assert
// on behaviour rather than events, or embeddings that wire their own
// observer directly.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (*NullEmitter) Emit(Event) {}

// EmitBatch discards the events.
func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush is a no-op.
func (*NullEmitter) Flush(context.Context) error { return nil }
