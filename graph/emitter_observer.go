package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonathanHHenson/hgraph/graph/emit"
)

// EmitterObserver bridges engine lifecycle observations onto an event
// emitter. Register it directly or via the WithEmitter option.
type EmitterObserver struct {
	BaseLifeCycleObserver
	emitter emit.Emitter

	tickStarted time.Time
	nodeStarted time.Time
}

// NewEmitterObserver creates the bridge over the given emitter.
func NewEmitterObserver(em emit.Emitter) *EmitterObserver {
	return &EmitterObserver{emitter: em}
}

// GraphIDString renders a nested-graph id as a dotted path; the root graph
// renders as "0".
func GraphIDString(g *Graph) string {
	id := g.GraphID()
	if len(id) == 0 {
		return "0"
	}
	parts := make([]string, len(id))
	for i, v := range id {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// NodeIDString renders a node as name[index].
func NodeIDString(n Node) string {
	return fmt.Sprintf("%s[%d]", n.Signature().Name, n.NodeNdx())
}

func engineTime(g *Graph) time.Time {
	if ctx := g.Context(); ctx != nil {
		return ctx.CurrentEngineTime()
	}
	return time.Time{}
}

// OnBeforeStart emits engine_start.
func (o *EmitterObserver) OnBeforeStart(g *Graph) error {
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(g),
		EngineTime: engineTime(g),
		Msg:        emit.MsgEngineStart,
	})
	return nil
}

// OnAfterStop emits engine_stop.
func (o *EmitterObserver) OnAfterStop(g *Graph) error {
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(g),
		EngineTime: engineTime(g),
		Msg:        emit.MsgEngineStop,
	})
	return nil
}

// OnAfterStartNode emits node_start.
func (o *EmitterObserver) OnAfterStartNode(n Node) error {
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(n.Graph()),
		EngineTime: engineTime(n.Graph()),
		NodeID:     NodeIDString(n),
		Msg:        emit.MsgNodeStart,
	})
	return nil
}

// OnAfterStopNode emits node_stop.
func (o *EmitterObserver) OnAfterStopNode(n Node) error {
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(n.Graph()),
		EngineTime: engineTime(n.Graph()),
		NodeID:     NodeIDString(n),
		Msg:        emit.MsgNodeStop,
	})
	return nil
}

// OnBeforeEvaluation emits tick_start.
func (o *EmitterObserver) OnBeforeEvaluation(g *Graph) error {
	o.tickStarted = time.Now()
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(g),
		EngineTime: engineTime(g),
		Msg:        emit.MsgTickStart,
	})
	return nil
}

// OnAfterEvaluation emits tick_end with the tick's wall duration and the
// engine lag.
func (o *EmitterObserver) OnAfterEvaluation(g *Graph) error {
	meta := map[string]any{
		"duration_ms": float64(time.Since(o.tickStarted)) / float64(time.Millisecond),
	}
	if ctx := g.Context(); ctx != nil {
		meta["engine_lag_ms"] = float64(ctx.EngineLag()) / float64(time.Millisecond)
	}
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(g),
		EngineTime: engineTime(g),
		Msg:        emit.MsgTickEnd,
		Meta:       meta,
	})
	return nil
}

// OnBeforeNodeEvaluation stamps the evaluation start.
func (o *EmitterObserver) OnBeforeNodeEvaluation(Node) error {
	o.nodeStarted = time.Now()
	return nil
}

// OnAfterNodeEvaluation emits node_eval with the evaluation's wall
// duration.
func (o *EmitterObserver) OnAfterNodeEvaluation(n Node) error {
	o.emitter.Emit(emit.Event{
		GraphID:    GraphIDString(n.Graph()),
		EngineTime: engineTime(n.Graph()),
		NodeID:     NodeIDString(n),
		Msg:        emit.MsgNodeEval,
		Meta: map[string]any{
			"duration_ms": float64(time.Since(o.nodeStarted)) / float64(time.Millisecond),
		},
	})
	return nil
}
