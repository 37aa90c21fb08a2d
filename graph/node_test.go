package graph

import (
	"testing"
	"time"
)

func TestNodeLifecycleIdempotence(t *testing.T) {
	starts, stops := 0, 0
	sig := &NodeSignature{Name: "n", NodeType: SourceNode}
	n := NewNode(0, nil, sig, nil,
		func(Kwargs) (any, error) { return nil, nil },
		func(Kwargs) error { starts++; return nil },
		func(Kwargs) error { stops++; return nil },
	)
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	g.SetContext(NewBackTestExecutionContext(testStart, nil))

	n.Initialise()
	if got := n.State(); got != Initialised {
		t.Fatalf("expected initialised, got %s", got)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if starts != 1 {
		t.Errorf("expected start function to run once, ran %d times", starts)
	}
	if got := n.State(); got != Started {
		t.Errorf("expected started, got %s", got)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if stops != 1 {
		t.Errorf("expected stop function to run once, ran %d times", stops)
	}
	if got := n.State(); got != Stopped {
		t.Errorf("expected stopped, got %s", got)
	}

	n.Dispose()
	if got := n.State(); got != Disposed {
		t.Errorf("expected disposed, got %s", got)
	}
}

func TestNodeKwargsAssembly(t *testing.T) {
	var seen Kwargs
	sig := &NodeSignature{
		Name:             "n",
		NodeType:         ComputeNode,
		Args:             []string{"in", "factor", "sched"},
		TimeSeriesInputs: []string{"in"},
		UsesScheduler:    true,
		StartArgs:        []string{"factor"},
	}
	scalars := map[string]any{
		"factor":  3,
		"ignored": "not in args",
		"sched":   SchedulerInjector(),
	}
	var startKwargs Kwargs
	n := NewNode(0, nil, sig, scalars,
		func(k Kwargs) (any, error) { seen = k; return nil, nil },
		func(k Kwargs) error { startKwargs = k; return nil },
		nil,
	)
	n.SetInput(NewBundleInput(n, []string{"in"}))
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	g.SetContext(NewBackTestExecutionContext(testStart, nil))

	src := NewValueOutput(n)
	if err := n.Input().Ref("in").BindOutput(src); err != nil {
		t.Fatalf("BindOutput failed: %v", err)
	}

	n.Initialise()
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.ApplyResult(7); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if err := n.Eval(); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if seen.Input("in") == nil {
		t.Error("expected the time-series input in kwargs")
	}
	if seen["factor"] != 3 {
		t.Errorf("expected scalar factor=3, got %v", seen["factor"])
	}
	if _, ok := seen["sched"].(*NodeScheduler); !ok {
		t.Errorf("expected injected scheduler, got %T", seen["sched"])
	}
	if _, ok := seen["ignored"]; ok {
		t.Error("expected scalars outside Args to be filtered out")
	}
	// The start function only sees the kwargs it names.
	if len(startKwargs) != 1 || startKwargs["factor"] != 3 {
		t.Errorf("expected start kwargs {factor: 3}, got %v", startKwargs)
	}
}

func TestNodeStaleWakeupGuard(t *testing.T) {
	evals := 0
	sig := &NodeSignature{
		Name:             "n",
		NodeType:         ComputeNode,
		Args:             []string{"in"},
		TimeSeriesInputs: []string{"in"},
		UsesScheduler:    true,
	}
	n := NewNode(0, nil, sig, nil,
		func(Kwargs) (any, error) { evals++; return nil, nil }, nil, nil)
	n.SetInput(NewBundleInput(n, []string{"in"}))
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	ctx := NewBackTestExecutionContext(testStart, nil)
	g.SetContext(ctx)

	src := NewValueOutput(n)
	if err := n.Input().Ref("in").BindOutput(src); err != nil {
		t.Fatalf("BindOutput failed: %v", err)
	}
	n.Initialise()
	// Materialise the timer queue; the stale-wakeup guard only applies to
	// nodes that drive their own timers.
	_ = n.Scheduler()
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Make the input valid at one instant, then move the clock: on the
	// later instant the scheduler is not due and nothing is modified, so
	// the wakeup is treated as stale.
	if err := src.ApplyResult(1); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if err := n.Eval(); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if evals != 1 {
		t.Fatalf("expected the modified-input evaluation, got %d", evals)
	}

	ctx.SetCurrentEngineTime(testStart.Add(time.Second))
	if err := n.Eval(); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if evals != 1 {
		t.Errorf("expected the stale wakeup to be suppressed, got %d evals", evals)
	}
}

func TestGeneratorCatchUp(t *testing.T) {
	// A generator whose early ticks predate the start of the run applies
	// the newest such value during its first evaluation and buffers the
	// first future value.
	sig := &NodeSignature{Name: "gen", NodeType: SourceNode}
	later := testStart.Add(time.Second)
	n := NewGeneratorNode(0, nil, sig, nil, func(Kwargs) (TickIterator, error) {
		return NewTickSliceIterator([]SeriesTick{
			{At: testStart.Add(-2 * time.Second), Value: 1},
			{At: testStart.Add(-time.Second), Value: 2},
			{At: later, Value: 3},
		}), nil
	})
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	ctx := NewBackTestExecutionContext(testStart, nil)
	g.SetContext(ctx)

	n.Initialise()
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := g.ScheduledTime(0); !got.Equal(testStart) {
		t.Fatalf("expected generator scheduled at start, got %s", got)
	}

	if err := n.Eval(); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got := n.Output().Value(); got != 2 {
		t.Errorf("expected the newest catch-up value 2, got %v", got)
	}
	if got := g.ScheduledTime(0); !got.Equal(later) {
		t.Errorf("expected reschedule at %s for the buffered value, got %s", later, got)
	}

	ctx.SetCurrentEngineTime(later)
	if err := n.Eval(); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got := n.Output().Value(); got != 3 {
		t.Errorf("expected the buffered value 3, got %v", got)
	}
}

func TestSenderReceiverStopped(t *testing.T) {
	ctx := NewRealTimeExecutionContext(time.Now().UTC(), nil)
	sr := NewSenderReceiver(ctx)
	if err := sr.Enqueue(1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	sr.markStopped()
	if err := sr.Enqueue(2); err != ErrReceiverStopped {
		t.Errorf("expected ErrReceiverStopped, got %v", err)
	}
	if v, ok := sr.Dequeue(); !ok || v != 1 {
		t.Errorf("expected the pre-stop value to drain, got %v ok=%v", v, ok)
	}
	if _, ok := sr.Dequeue(); ok {
		t.Error("expected an empty queue")
	}
}
