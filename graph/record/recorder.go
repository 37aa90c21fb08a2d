package record

import (
	"context"

	"github.com/JonathanHHenson/hgraph/graph"
)

// Recorder is a lifecycle observer that captures every node output modified
// by a node evaluation into a Store. Push-source outputs are not captured:
// push drainage fires no per-node callbacks. Register it on an engine to
// persist the run's tick stream:
//
//	store, _ := record.NewSQLiteStore(ctx, "./run.db")
//	recorder := record.NewRecorder(store, "run-001")
//	engine := graph.NewGraphEngine(g, graph.RunModeBackTest,
//	    graph.WithLifeCycleObserver(recorder))
//
// A store failure propagates out of the run, since recording is part of
// the tick.
type Recorder struct {
	graph.BaseLifeCycleObserver
	store Store
	runID string
	ctx   context.Context
}

// NewRecorder creates a recorder writing to the given store under runID.
func NewRecorder(store Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID, ctx: context.Background()}
}

// OnAfterNodeEvaluation records the node's output when it ticked at the
// current engine time.
func (r *Recorder) OnAfterNodeEvaluation(n graph.Node) error {
	out := n.Output()
	if out == nil || !out.Modified() {
		return nil
	}
	at := n.Graph().Context().CurrentEngineTime()
	return r.store.SaveTick(r.ctx, r.runID, graph.NodeIDString(n), at, out.DeltaValue())
}
