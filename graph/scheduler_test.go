package graph

import (
	"testing"
	"time"
)

// newStartedNode wires a single source node into a graph with a back-test
// clock positioned at testStart and starts it.
func newStartedNode(t *testing.T) (*BaseNode, *Graph, *BackTestExecutionContext) {
	t.Helper()
	sig := &NodeSignature{Name: "n", NodeType: SourceNode, UsesScheduler: true}
	n := NewNode(0, nil, sig, nil, func(Kwargs) (any, error) { return nil, nil }, nil, nil)
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	ctx := NewBackTestExecutionContext(testStart, nil)
	g.SetContext(ctx)
	n.Initialise()
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return n, g, ctx
}

func TestSchedulerTagReplacement(t *testing.T) {
	n, _, _ := newStartedNode(t)
	sched := n.Scheduler()

	t1 := testStart.Add(time.Second)
	t2 := testStart.Add(2 * time.Second)
	sched.Schedule(t1, "x")
	sched.Schedule(t2, "x")

	if !sched.HasTag("x") {
		t.Fatal("expected tag x to be pending")
	}
	if got := sched.NextScheduledTime(); !got.Equal(t2) {
		t.Errorf("expected replacement to leave only %s, got head %s", t2, got)
	}
	when, ok := sched.PopTag("x")
	if !ok || !when.Equal(t2) {
		t.Errorf("expected PopTag to return %s, got %s ok=%v", t2, when, ok)
	}
	if sched.IsScheduled() {
		t.Error("expected no entries after PopTag")
	}
}

func TestSchedulerRejectsPastWhenStarted(t *testing.T) {
	n, _, ctx := newStartedNode(t)
	sched := n.Scheduler()

	sched.Schedule(testStart, "now")
	if sched.IsScheduled() {
		t.Error("scheduling at the current engine time while started must be ignored")
	}
	sched.Schedule(testStart.Add(-time.Second), "past")
	if sched.IsScheduled() {
		t.Error("scheduling in the past while started must be ignored")
	}

	// The next distinguishable instant is accepted.
	sched.Schedule(ctx.NextCycleEngineTime(), "next")
	if !sched.IsScheduled() {
		t.Error("expected the next instant to be schedulable")
	}
}

func TestSchedulerAdvance(t *testing.T) {
	n, g, ctx := newStartedNode(t)
	sched := n.Scheduler()

	t1 := testStart.Add(time.Second)
	t2 := testStart.Add(2 * time.Second)
	sched.Schedule(t1, "a")
	sched.Schedule(t2, "b")

	ctx.SetCurrentEngineTime(t1)
	if !sched.IsScheduledNow() {
		t.Fatal("expected head entry to be due now")
	}
	sched.Advance()
	if sched.HasTag("a") {
		t.Error("expected the due entry to be dropped")
	}
	if got := sched.NextScheduledTime(); !got.Equal(t2) {
		t.Errorf("expected head %s after advance, got %s", t2, got)
	}
	if got := g.ScheduledTime(0); !got.Equal(t2) {
		t.Errorf("expected advance to propagate %s to the graph schedule, got %s", t2, got)
	}

	ctx.SetCurrentEngineTime(t2.Add(time.Second))
	sched.Advance()
	if sched.IsScheduled() {
		t.Error("expected no entries at or before the current time to remain")
	}
}

func TestSchedulerAnonymousEntriesCoexist(t *testing.T) {
	n, _, _ := newStartedNode(t)
	sched := n.Scheduler()

	t1 := testStart.Add(time.Second)
	t2 := testStart.Add(2 * time.Second)
	sched.Schedule(t1, "")
	sched.Schedule(t2, "")
	if got := sched.NextScheduledTime(); !got.Equal(t1) {
		t.Errorf("expected two anonymous entries with head %s, got %s", t1, got)
	}
	sched.UnSchedule("")
	if got := sched.NextScheduledTime(); !got.Equal(t2) {
		t.Errorf("expected UnSchedule to pop the head, leaving %s, got %s", t2, got)
	}
}

func TestSchedulerScheduleInResolvesAgainstEngineTime(t *testing.T) {
	n, g, _ := newStartedNode(t)
	sched := n.Scheduler()

	sched.ScheduleIn(time.Minute, "rel")
	want := testStart.Add(time.Minute)
	if got := sched.NextScheduledTime(); !got.Equal(want) {
		t.Errorf("expected relative schedule at %s, got %s", want, got)
	}
	if got := g.ScheduledTime(0); !got.Equal(want) {
		t.Errorf("expected new head to reach the graph schedule, got %s", got)
	}
}

func TestSchedulerReset(t *testing.T) {
	n, _, _ := newStartedNode(t)
	sched := n.Scheduler()

	sched.Schedule(testStart.Add(time.Second), "a")
	sched.Schedule(testStart.Add(2*time.Second), "")
	sched.Reset()
	if sched.IsScheduled() || sched.HasTag("a") {
		t.Error("expected Reset to drop every entry")
	}
	if got := sched.NextScheduledTime(); !got.Equal(MinDT) {
		t.Errorf("expected MinDT from an empty scheduler, got %s", got)
	}
}

func TestNotifyBeforeStartConsumedOnStart(t *testing.T) {
	sig := &NodeSignature{Name: "n", NodeType: SourceNode}
	evals := 0
	n := NewNode(0, nil, sig, nil, func(Kwargs) (any, error) {
		evals++
		return nil, nil
	}, nil, nil)
	n.SetOutput(NewValueOutput(n))
	g := NewGraph(nil, []Node{n}, 0)
	ctx := NewBackTestExecutionContext(testStart, nil)
	g.SetContext(ctx)
	n.Initialise()

	// Notify before start parks a "start" wakeup rather than scheduling.
	n.Notify()
	if got := g.ScheduledTime(0); !got.Equal(MinDT) {
		t.Fatalf("expected no graph schedule before start, got %s", got)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := g.ScheduledTime(0); !got.Equal(testStart) {
		t.Errorf("expected start to request immediate evaluation at %s, got %s", testStart, got)
	}
}
