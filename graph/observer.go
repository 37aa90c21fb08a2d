package graph

// LifeCycleObserver receives callbacks around the engine's lifecycle and
// every evaluation pass. Observers are persistent (unlike the one-shot
// tick-scoped notifications) and are notified in insertion order. An error
// returned from any callback propagates out of the run; callbacks are part
// of the tick.
type LifeCycleObserver interface {
	// OnBeforeStart fires before any node starts.
	OnBeforeStart(g *Graph) error

	// OnAfterStart fires once every node has started.
	OnAfterStart(g *Graph) error

	// OnBeforeStartNode and OnAfterStartNode bracket each node start.
	OnBeforeStartNode(n Node) error
	OnAfterStartNode(n Node) error

	// OnBeforeEvaluation and OnAfterEvaluation bracket each tick.
	OnBeforeEvaluation(g *Graph) error
	OnAfterEvaluation(g *Graph) error

	// OnBeforeNodeEvaluation and OnAfterNodeEvaluation bracket each node
	// evaluation within a tick. They do not fire for push-source
	// drainage, nor for nodes skipped by the input-validity gate.
	OnBeforeNodeEvaluation(n Node) error
	OnAfterNodeEvaluation(n Node) error

	// OnBeforeStop fires before any node stops.
	OnBeforeStop(g *Graph) error

	// OnAfterStop fires once every node has stopped.
	OnAfterStop(g *Graph) error

	// OnBeforeStopNode and OnAfterStopNode bracket each node stop.
	OnBeforeStopNode(n Node) error
	OnAfterStopNode(n Node) error
}

// BaseLifeCycleObserver is a no-op LifeCycleObserver for embedding, so
// observers only implement the callbacks they care about.
type BaseLifeCycleObserver struct{}

// OnBeforeStart implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeStart(*Graph) error { return nil }

// OnAfterStart implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterStart(*Graph) error { return nil }

// OnBeforeStartNode implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeStartNode(Node) error { return nil }

// OnAfterStartNode implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterStartNode(Node) error { return nil }

// OnBeforeEvaluation implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeEvaluation(*Graph) error { return nil }

// OnAfterEvaluation implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterEvaluation(*Graph) error { return nil }

// OnBeforeNodeEvaluation implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeNodeEvaluation(Node) error { return nil }

// OnAfterNodeEvaluation implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterNodeEvaluation(Node) error { return nil }

// OnBeforeStop implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeStop(*Graph) error { return nil }

// OnAfterStop implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterStop(*Graph) error { return nil }

// OnBeforeStopNode implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnBeforeStopNode(Node) error { return nil }

// OnAfterStopNode implements LifeCycleObserver.
func (BaseLifeCycleObserver) OnAfterStopNode(Node) error { return nil }
