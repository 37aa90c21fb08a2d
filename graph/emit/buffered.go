package emit

import (
	"context"
	"sync"
	"time"
)

// BufferedEmitter implements Emitter by storing events in memory, keyed by
// graph id.
//
// It captures the full event stream of a run for later inspection:
// development, debugging, tests asserting on engine behaviour, and
// post-run analysis. All methods are safe for concurrent use, so a live
// run can be observed while it executes.
//
// The buffer grows without bound; long-running real-time graphs should
// either clear it periodically or use a persistent backend instead.
//
// Example:
//
//	emitter := emit.NewBufferedEmitter()
//	engine := graph.NewGraphEngine(g, graph.RunModeBackTest, graph.WithEmitter(emitter))
//	_ = engine.Run(ctx, start, end)
//	evals := emitter.HistoryWithFilter("0", emit.HistoryFilter{Msg: emit.MsgNodeEval})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects a subset of a graph's event history. Set fields
// combine with AND; zero values do not filter.
type HistoryFilter struct {
	// NodeID selects events of one node.
	NodeID string

	// Msg selects events with one message.
	Msg string

	// From selects events with EngineTime at or after this instant.
	From time.Time

	// Until selects events with EngineTime at or before this instant.
	Until time.Time
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.GraphID] = append(b.events[event.GraphID], event)
}

// EmitBatch stores the events in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.events[event.GraphID] = append(b.events[event.GraphID], event)
	}
	return nil
}

// Flush is a no-op: the buffer is the backend.
func (*BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events recorded for the given graph, in
// emission order.
func (b *BufferedEmitter) History(graphID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[graphID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter returns the events recorded for the given graph that
// match the filter, in emission order.
func (b *BufferedEmitter) HistoryWithFilter(graphID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, event := range b.events[graphID] {
		if filter.NodeID != "" && event.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		if !filter.From.IsZero() && event.EngineTime.Before(filter.From) {
			continue
		}
		if !filter.Until.IsZero() && event.EngineTime.After(filter.Until) {
			continue
		}
		out = append(out, event)
	}
	return out
}

// Clear removes all events recorded for the given graph.
func (b *BufferedEmitter) Clear(graphID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, graphID)
}

// ClearAll removes every recorded event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
