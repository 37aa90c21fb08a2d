package graph

import (
	"errors"
	"sync"
	"time"
)

// Graph owns a rank-ordered sequence of nodes together with the per-node
// schedule vector: schedule[i] is the earliest engine time node i still
// intends to fire. Nodes with indices below PushSourceNodesEnd are push
// sources; for every edge src→dst, index(src) < index(dst).
type Graph struct {
	graphID            []int
	nodes              []Node
	pushSourceNodesEnd int

	// mu guards the schedule vector: the executor writes it on its own
	// goroutine, and ScheduleNode may be reached from producer threads
	// through the real-time wakeup path.
	mu       sync.Mutex
	schedule []time.Time

	context ExecutionContext
}

// NewGraph creates a graph over the given rank-ordered nodes and takes
// ownership of them. Nodes with indices below pushSourceNodesEnd must be
// push sources.
func NewGraph(graphID []int, nodes []Node, pushSourceNodesEnd int) *Graph {
	g := &Graph{
		graphID:            graphID,
		nodes:              nodes,
		pushSourceNodesEnd: pushSourceNodesEnd,
		schedule:           make([]time.Time, len(nodes)),
	}
	for i := range g.schedule {
		g.schedule[i] = MinDT
	}
	for _, n := range nodes {
		n.SetGraph(g)
	}
	return g
}

// GraphID identifies this graph's nested position.
func (g *Graph) GraphID() []int { return g.graphID }

// Nodes returns the rank-ordered node sequence. The slice is owned by the
// graph and must not be mutated.
func (g *Graph) Nodes() []Node { return g.nodes }

// PushSourceNodesEnd is the exclusive end index of the push-source prefix.
func (g *Graph) PushSourceNodesEnd() int { return g.pushSourceNodesEnd }

// Context returns the execution context of the active run, or nil.
func (g *Graph) Context() ExecutionContext { return g.context }

// SetContext attaches the context for the duration of a run. Engine use
// only.
func (g *Graph) SetContext(ctx ExecutionContext) { g.context = ctx }

// ScheduledTime returns node i's pending fire time.
func (g *Graph) ScheduledTime(i int) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.schedule[i]
}

// ScheduleNode records that node i intends to fire at when. A pending
// future fire time is only narrowed, never widened; a stale entry (at or
// before the current engine time) is overwritten. The context's proposed
// next engine time is narrowed alongside so the executor will not sleep
// past the wakeup. Safe from any goroutine.
func (g *Graph) ScheduleNode(i int, when time.Time) {
	g.mu.Lock()
	now := MinDT
	if g.context != nil {
		now = g.context.CurrentEngineTime()
	}
	cur := g.schedule[i]
	if !cur.After(now) || when.Before(cur) {
		g.schedule[i] = when
	}
	g.mu.Unlock()
	if g.context != nil {
		g.context.UpdateNextProposedTime(when)
	}
}

// Initialise initialises every node in forward order.
func (g *Graph) Initialise() {
	for _, n := range g.nodes {
		n.Initialise()
	}
}

// Start starts every node in forward order, stopping at the first failure.
func (g *Graph) Start() error {
	for _, n := range g.nodes {
		if err := n.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every node in forward order. Stop is best-effort: a per-node
// failure does not prevent the remaining nodes from stopping; the collected
// errors are returned joined.
func (g *Graph) Stop() error {
	var errs []error
	for _, n := range g.nodes {
		if err := n.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispose disposes every node in forward order.
func (g *Graph) Dispose() {
	for _, n := range g.nodes {
		n.Dispose()
	}
}
