package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// RunMode selects how the engine clock relates to wall-clock time.
type RunMode int

const (
	// RunModeBackTest advances logical time as fast as work permits.
	// Push sources are not supported.
	RunModeBackTest RunMode = iota

	// RunModeRealTime tracks wall-clock time and is woken by external
	// push sources.
	RunModeRealTime
)

// String renders the run mode for diagnostics.
func (m RunMode) String() string {
	switch m {
	case RunModeBackTest:
		return "back_test"
	case RunModeRealTime:
		return "real_time"
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// GraphEngine drives a graph through a sequence of evaluation times. One
// engine evaluates one graph on a single goroutine: within a tick, nodes
// fire in ascending index order, so an output applied by an earlier node is
// seen as modified by later-indexed consumers in the same tick.
//
// Example:
//
//	builder := MakeGraphBuilder(nodeBuilders, edges)
//	g, _ := builder.MakeInstance(nil)
//	engine := NewGraphEngine(g, RunModeBackTest)
//	engine.Initialise()
//	err := engine.Run(context.Background(), start, end)
type GraphEngine struct {
	graph     *Graph
	runMode   RunMode
	isStarted atomic.Bool

	startTime time.Time
	endTime   time.Time
	context   ExecutionContext

	observers []LifeCycleObserver

	beforeEvaluationNotifications []func()
	afterEvaluationNotifications  []func()
}

// NewGraphEngine creates an engine for the given graph and run mode.
func NewGraphEngine(g *Graph, runMode RunMode, options ...Option) *GraphEngine {
	e := &GraphEngine{graph: g, runMode: runMode}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Graph returns the graph this engine evaluates.
func (e *GraphEngine) Graph() *Graph { return e.graph }

// RunMode returns the engine's run mode.
func (e *GraphEngine) RunMode() RunMode { return e.runMode }

// Context returns the execution context of the active run, or nil outside
// a run.
func (e *GraphEngine) Context() ExecutionContext { return e.context }

// AddLifeCycleObserver registers an observer. Observers are notified in
// insertion order.
func (e *GraphEngine) AddLifeCycleObserver(o LifeCycleObserver) {
	e.observers = append(e.observers, o)
}

// RemoveLifeCycleObserver removes a previously registered observer.
func (e *GraphEngine) RemoveLifeCycleObserver(o LifeCycleObserver) {
	for i, existing := range e.observers {
		if existing == o {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

// Initialise initialises the graph's nodes. Call once before the first Run.
func (e *GraphEngine) Initialise() {
	e.graph.Initialise()
}

// Dispose releases the graph's nodes. The engine must not be running.
func (e *GraphEngine) Dispose() {
	e.graph.Dispose()
}

// Run evaluates the graph from startTime to endTime inclusive. The run
// fails synchronously, before any state change, when endTime precedes
// startTime or when a back-test graph contains push sources.
//
// Start and stop are scoped: stop is attempted on every exit path,
// including node failures mid-run. Cancelling ctx is equivalent to
// RequestEngineStop and is observed at the next tick boundary.
func (e *GraphEngine) Run(ctx context.Context, startTime, endTime time.Time) (err error) {
	if endTime.Before(startTime) {
		return fmt.Errorf("%w: start=%s end=%s", ErrEndBeforeStart, startTime, endTime)
	}
	if e.runMode == RunModeBackTest && e.graph.PushSourceNodesEnd() > 0 {
		return ErrPushNotSupported
	}
	if !e.isStarted.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.startTime = startTime
	e.endTime = endTime

	if err := e.start(); err != nil {
		stopErr := e.stop()
		return errors.Join(err, stopErr)
	}
	defer func() {
		if stopErr := e.stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	stopWatching := e.watchCancellation(ctx)
	defer stopWatching()

	for !e.context.CurrentEngineTime().After(e.endTime) {
		if err := e.evaluateGraph(); err != nil {
			return err
		}
		e.advanceEngineTime()
	}
	return nil
}

// watchCancellation turns ctx cancellation into an engine stop request so a
// blocked real-time wait is woken. The returned func releases the watcher.
func (e *GraphEngine) watchCancellation(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	engineCtx := e.context
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			engineCtx.RequestEngineStop()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// start builds the run's execution context and starts every node, wrapped
// in the start observer callbacks.
func (e *GraphEngine) start() error {
	switch e.runMode {
	case RunModeRealTime:
		e.context = NewRealTimeExecutionContext(e.startTime, e)
	default:
		e.context = NewBackTestExecutionContext(e.startTime, e)
	}
	e.graph.SetContext(e.context)

	if err := e.notifyGraph(LifeCycleObserver.OnBeforeStart); err != nil {
		return err
	}
	for _, n := range e.graph.Nodes() {
		if err := e.notifyNode(LifeCycleObserver.OnBeforeStartNode, n); err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}
		if err := e.notifyNode(LifeCycleObserver.OnAfterStartNode, n); err != nil {
			return err
		}
	}
	return e.notifyGraph(LifeCycleObserver.OnAfterStart)
}

// stop stops every node best-effort, wrapped in the stop observer
// callbacks, then detaches the context. Errors are collected and joined so
// a failing node cannot prevent the rest of the graph from stopping.
func (e *GraphEngine) stop() error {
	if !e.isStarted.CompareAndSwap(true, false) {
		return nil
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(e.notifyGraph(LifeCycleObserver.OnBeforeStop))
	for _, n := range e.graph.Nodes() {
		collect(e.notifyNode(LifeCycleObserver.OnBeforeStopNode, n))
		collect(n.Stop())
		collect(e.notifyNode(LifeCycleObserver.OnAfterStopNode, n))
	}
	collect(e.notifyGraph(LifeCycleObserver.OnAfterStop))

	e.graph.SetContext(nil)
	e.context = nil
	return errors.Join(errs...)
}

// evaluateGraph runs one evaluation pass at the current engine time:
// one-shot before notifications, push-source drainage when flagged,
// ordinary nodes in ascending index order, one-shot after notifications.
func (e *GraphEngine) evaluateGraph() error {
	e.drainBeforeEvaluationNotifications()
	if err := e.notifyGraph(LifeCycleObserver.OnBeforeEvaluation); err != nil {
		return err
	}

	now := e.context.CurrentEngineTime()
	nodes := e.graph.Nodes()

	if e.context.PushHasPendingValues() {
		e.context.ResetPushHasPendingValues()
		// Push drainage only moves the sources on; it is not a user
		// evaluation, so the per-node callbacks stay silent.
		for i := 0; i < e.graph.PushSourceNodesEnd(); i++ {
			if err := nodes[i].Eval(); err != nil {
				return err
			}
		}
	}

	for i := e.graph.PushSourceNodesEnd(); i < len(nodes); i++ {
		scheduledTime := e.graph.ScheduledTime(i)
		switch {
		case scheduledTime.Equal(now):
			n := nodes[i]
			if !n.CanEvaluate() {
				// Required inputs have never ticked; neither the
				// node nor its observer callbacks fire.
				continue
			}
			if err := e.notifyNode(LifeCycleObserver.OnBeforeNodeEvaluation, n); err != nil {
				return err
			}
			if err := n.Eval(); err != nil {
				return err
			}
			if err := e.notifyNode(LifeCycleObserver.OnAfterNodeEvaluation, n); err != nil {
				return err
			}
		case scheduledTime.After(now):
			e.context.UpdateNextProposedTime(scheduledTime)
		}
	}

	e.drainAfterEvaluationNotifications()
	return e.notifyGraph(LifeCycleObserver.OnAfterEvaluation)
}

// advanceEngineTime moves the clock to the next evaluation time: the
// narrowed proposal when it is due, the wall clock on a push wakeup, or a
// blocking wait otherwise. A requested stop jumps past endTime and
// terminates the run loop.
func (e *GraphEngine) advanceEngineTime() {
	if e.context.IsStopRequested() {
		e.context.SetCurrentEngineTime(e.endTime.Add(MinTD))
		return
	}

	proposed := minTime(e.context.ProposedNextEngineTime(), e.endTime.Add(MinTD))
	wallClock := e.context.WallClockTime()
	if !wallClock.Before(proposed) {
		e.context.SetCurrentEngineTime(proposed)
		return
	}

	if e.context.PushHasPendingValues() {
		e.context.SetCurrentEngineTime(wallClock)
		return
	}

	e.context.WaitUntilProposedEngineTime(proposed)
}

func (e *GraphEngine) addBeforeEvaluationNotification(fn func()) {
	e.beforeEvaluationNotifications = append(e.beforeEvaluationNotifications, fn)
}

func (e *GraphEngine) addAfterEvaluationNotification(fn func()) {
	e.afterEvaluationNotifications = append(e.afterEvaluationNotifications, fn)
}

// drainBeforeEvaluationNotifications fires the parked before-tick one-shots
// in FIFO order and clears the list.
func (e *GraphEngine) drainBeforeEvaluationNotifications() {
	pending := e.beforeEvaluationNotifications
	e.beforeEvaluationNotifications = nil
	for _, fn := range pending {
		fn()
	}
}

// drainAfterEvaluationNotifications fires the parked after-tick one-shots
// in LIFO order and clears the list.
func (e *GraphEngine) drainAfterEvaluationNotifications() {
	pending := e.afterEvaluationNotifications
	e.afterEvaluationNotifications = nil
	for i := len(pending) - 1; i >= 0; i-- {
		pending[i]()
	}
}

func (e *GraphEngine) notifyGraph(cb func(LifeCycleObserver, *Graph) error) error {
	for _, o := range e.observers {
		if err := cb(o, e.graph); err != nil {
			return err
		}
	}
	return nil
}

func (e *GraphEngine) notifyNode(cb func(LifeCycleObserver, Node) error, n Node) error {
	for _, o := range e.observers {
		if err := cb(o, n); err != nil {
			return err
		}
	}
	return nil
}
