package graph

import (
	"fmt"
	"time"
)

// LifeCycleState is the per-node lifecycle position. Transitions run
// uninitialised → initialised → starting → started → stopping → stopped →
// disposed; start and stop are idempotent-guarded, so a double start or
// double stop is suppressed rather than failed.
type LifeCycleState int

const (
	// Uninitialised is the state of a freshly built node.
	Uninitialised LifeCycleState = iota
	// Initialised follows Initialise.
	Initialised
	// Starting is transient while the start function runs.
	Starting
	// Started means the node participates in evaluation.
	Started
	// Stopping is transient while the stop function runs.
	Stopping
	// Stopped follows Stop.
	Stopped
	// Disposed means resources have been released.
	Disposed
)

// String renders the state for diagnostics.
func (s LifeCycleState) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Initialised:
		return "initialised"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("LifeCycleState(%d)", int(s))
}

// NodeType classifies a node's role in the graph.
type NodeType int

const (
	// SourceNode produces values from an internal schedule (generators).
	SourceNode NodeType = iota
	// PushSourceNode produces values enqueued by external goroutines.
	PushSourceNode
	// ComputeNode consumes inputs and produces an output.
	ComputeNode
	// SinkNode consumes inputs and produces no output.
	SinkNode
)

// NodeSignature describes what a node consumes and produces and how it
// behaves at runtime. Signatures are immutable after build.
type NodeSignature struct {
	// Name identifies the node for diagnostics and observability.
	Name string

	// NodeType classifies the node.
	NodeType NodeType

	// Args lists every parameter the eval function consumes, in order.
	// The kwargs bundle assembled at start is filtered to these names.
	Args []string

	// TimeSeriesInputs lists the subset of Args that are time-series
	// inputs (the rest are scalars or injected values).
	TimeSeriesInputs []string

	// ActiveInputs lists the inputs whose ticks wake this node. Nil means
	// all time-series inputs are made active at start.
	ActiveInputs []string

	// ValidInputs lists the inputs that must be valid before the eval
	// function may fire. Nil means all time-series inputs are required.
	ValidInputs []string

	// UsesScheduler marks nodes that drive their own timers. When start
	// consumes a pre-start Notify wakeup, the scheduler is kept only if
	// this is set; a scheduler holding other timers is always kept.
	UsesScheduler bool

	// StartArgs and StopArgs name the kwargs the start and stop
	// functions consume.
	StartArgs []string
	StopArgs  []string
}

// Kwargs is the keyword-argument bundle assembled once at node start from
// the node's inputs, scalars, and injected values, filtered to the
// signature's Args. It is not reallocated per tick.
type Kwargs map[string]any

// Input returns the time-series input bound under the given name, or nil.
func (k Kwargs) Input(name string) TimeSeriesInput {
	in, _ := k[name].(TimeSeriesInput)
	return in
}

// EvalFunc is a compute node's evaluation function. A non-nil return value
// is applied to the node's output.
type EvalFunc func(kwargs Kwargs) (any, error)

// StartFunc runs when a node starts, after inputs have been made active.
type StartFunc func(kwargs Kwargs) error

// StopFunc runs when a node stops.
type StopFunc func(kwargs Kwargs) error

// Injector is a scalar resolved against the node at start time rather than
// captured at build time. Use it to hand nodes runtime collaborators such
// as their scheduler or clock.
type Injector func(n Node) any

// SchedulerInjector injects the node's own scheduler into its kwargs.
func SchedulerInjector() Injector {
	return func(n Node) any { return n.Scheduler() }
}

// ClockInjector injects the owning graph's execution context.
func ClockInjector() Injector {
	return func(n Node) any { return n.Graph().Context() }
}

// TickIterator yields successive (fire time, value) pairs for a generator
// node. Next returns ok=false when the iterator is exhausted.
type TickIterator interface {
	Next() (t time.Time, value any, ok bool)
}

// GeneratorFunc is invoked once at generator-node start to obtain the tick
// iterator.
type GeneratorFunc func(kwargs Kwargs) (TickIterator, error)

// PushFunc is invoked once at push-source-node start with the receiver
// whose enqueue side is handed to external producers.
type PushFunc func(sr *SenderReceiver, kwargs Kwargs) error

// Node is the runtime contract the executor drives. Concrete kinds are
// compute/sink nodes (NewNode), generator sources (NewGeneratorNode), and
// push sources (NewPushSourceNode).
type Node interface {
	// NodeNdx is the node's index within its graph's rank order.
	NodeNdx() int

	// OwningGraphID identifies the nested-graph position of the owning
	// graph.
	OwningGraphID() []int

	// NodeID is OwningGraphID extended with NodeNdx.
	NodeID() []int

	// Signature returns the node's immutable signature.
	Signature() *NodeSignature

	// Scalars returns the compile-time constants captured at build.
	Scalars() map[string]any

	// Graph returns the owning graph; SetGraph is called once when the
	// graph takes ownership.
	Graph() *Graph
	SetGraph(g *Graph)

	// Input returns the composite of all time-series inputs, or nil for
	// nodes without inputs. SetInput is called during build.
	Input() *BundleInput
	SetInput(in *BundleInput)

	// Output returns the node's output port, or nil for sinks.
	// SetOutput is called during build.
	Output() TimeSeriesOutput
	SetOutput(out TimeSeriesOutput)

	// Scheduler returns the node's timer queue, creating it lazily.
	Scheduler() *NodeScheduler

	// State returns the current lifecycle state.
	State() LifeCycleState

	// IsStarted reports whether the node is started. A node still in the
	// starting state is not reported as started.
	IsStarted() bool

	// Initialise moves the node from uninitialised to initialised.
	Initialise()

	// Start assembles kwargs, activates inputs, and runs the start
	// function. Idempotent.
	Start() error

	// CanEvaluate reports whether the validity gate passes: every
	// required input has ever had a value. The executor consults this
	// before firing the node and its per-node observer callbacks.
	CanEvaluate() bool

	// Eval runs one evaluation of the node at the current engine time.
	Eval() error

	// Stop runs the stop function and releases the kwargs. Idempotent.
	Stop() error

	// Dispose releases the node's resources.
	Dispose()

	// Notify requests re-evaluation of this node at the current engine
	// time. Before start it records a pending "start" wakeup instead.
	Notify()
}

// startTag is the scheduler tag used by Notify before a node has started.
const startTag = "start"

// BaseNode is the ordinary node implementation backing compute, sink, and
// plain source nodes. Behaviour variants embed it and override the
// lifecycle methods they specialise.
type BaseNode struct {
	nodeNdx       int
	owningGraphID []int
	signature     *NodeSignature
	scalars       map[string]any
	graph         *Graph
	input         *BundleInput
	output        TimeSeriesOutput
	scheduler     *NodeScheduler
	state         LifeCycleState
	kwargs        Kwargs

	evalFn  EvalFunc
	startFn StartFunc
	stopFn  StopFunc
}

// NewNode creates a compute/sink/source node with the given behaviour.
func NewNode(nodeNdx int, owningGraphID []int, signature *NodeSignature, scalars map[string]any,
	evalFn EvalFunc, startFn StartFunc, stopFn StopFunc) *BaseNode {
	return &BaseNode{
		nodeNdx:       nodeNdx,
		owningGraphID: owningGraphID,
		signature:     signature,
		scalars:       scalars,
		evalFn:        evalFn,
		startFn:       startFn,
		stopFn:        stopFn,
	}
}

// NodeNdx returns the node's index within its graph.
func (n *BaseNode) NodeNdx() int { return n.nodeNdx }

// OwningGraphID identifies the owning graph's nested position.
func (n *BaseNode) OwningGraphID() []int { return n.owningGraphID }

// NodeID is the owning graph id extended with the node index.
func (n *BaseNode) NodeID() []int {
	id := make([]int, 0, len(n.owningGraphID)+1)
	id = append(id, n.owningGraphID...)
	return append(id, n.nodeNdx)
}

// Signature returns the node's signature.
func (n *BaseNode) Signature() *NodeSignature { return n.signature }

// Scalars returns the node's build-time constants.
func (n *BaseNode) Scalars() map[string]any { return n.scalars }

// Graph returns the owning graph.
func (n *BaseNode) Graph() *Graph { return n.graph }

// SetGraph records the owning graph.
func (n *BaseNode) SetGraph(g *Graph) { n.graph = g }

// Input returns the node's input bundle.
func (n *BaseNode) Input() *BundleInput { return n.input }

// SetInput records the node's input bundle.
func (n *BaseNode) SetInput(in *BundleInput) { n.input = in }

// Output returns the node's output port.
func (n *BaseNode) Output() TimeSeriesOutput { return n.output }

// SetOutput records the node's output port.
func (n *BaseNode) SetOutput(out TimeSeriesOutput) { n.output = out }

// Scheduler returns the node's timer queue, creating it on first use.
func (n *BaseNode) Scheduler() *NodeScheduler {
	if n.scheduler == nil {
		n.scheduler = NewNodeScheduler(n)
	}
	return n.scheduler
}

// State returns the lifecycle state.
func (n *BaseNode) State() LifeCycleState { return n.state }

// IsStarted reports whether the node is started; the transient starting
// state does not count.
func (n *BaseNode) IsStarted() bool {
	return n.state == Started
}

// Initialise moves the node to initialised. No-op when already past.
func (n *BaseNode) Initialise() {
	if n.state == Uninitialised {
		n.state = Initialised
	}
}

// initialiseKwargs assembles the kwargs bundle from inputs, scalars, and
// injected values, filtered to the signature's Args.
func (n *BaseNode) initialiseKwargs() {
	merged := make(map[string]any, len(n.signature.Args))
	if n.input != nil {
		for _, f := range n.input.Fields() {
			merged[f] = n.input.Ref(f)
		}
	}
	for k, v := range n.scalars {
		if inj, ok := v.(Injector); ok {
			merged[k] = inj(n)
			continue
		}
		merged[k] = v
	}
	n.kwargs = make(Kwargs, len(n.signature.Args))
	for _, arg := range n.signature.Args {
		if v, ok := merged[arg]; ok {
			n.kwargs[arg] = v
		}
	}
}

// initialiseInputs makes the signature's active inputs (or all time-series
// inputs when unspecified) active.
func (n *BaseNode) initialiseInputs() {
	if n.input == nil {
		return
	}
	active := n.signature.ActiveInputs
	if active == nil {
		active = n.signature.TimeSeriesInputs
	}
	for _, k := range active {
		if in := n.input.Ref(k); in != nil {
			in.MakeActive()
		}
	}
}

// filterKwargs returns the subset of kwargs named by args.
func (n *BaseNode) filterKwargs(args []string) Kwargs {
	out := make(Kwargs, len(args))
	for _, a := range args {
		if v, ok := n.kwargs[a]; ok {
			out[a] = v
		}
	}
	return out
}

// beginStart enters the starting state. Returns false when start should be
// suppressed (already started or starting).
func (n *BaseNode) beginStart() bool {
	if n.state == Starting || n.state == Started {
		return false
	}
	n.state = Starting
	return true
}

// endStart enters the started state and resolves any pending pre-start
// notification: a consumed "start" tag becomes an immediate wakeup, while
// other queued timers advance to the executor's schedule.
func (n *BaseNode) endStart() {
	n.state = Started
	if n.scheduler == nil {
		return
	}
	if _, ok := n.scheduler.PopTag(startTag); ok {
		n.Notify()
		if !n.signature.UsesScheduler {
			n.scheduler = nil
		}
		return
	}
	n.scheduler.Advance()
}

// Start assembles kwargs, activates inputs, and runs the start function.
func (n *BaseNode) Start() error {
	if !n.beginStart() {
		return nil
	}
	n.initialiseKwargs()
	n.initialiseInputs()
	if n.startFn != nil {
		if err := n.startFn(n.filterKwargs(n.signature.StartArgs)); err != nil {
			return newNodeError(n, "start", err)
		}
	}
	n.endStart()
	return nil
}

// CanEvaluate reports whether every required input has ever had a value.
func (n *BaseNode) CanEvaluate() bool {
	if n.input == nil || len(n.signature.TimeSeriesInputs) == 0 {
		return true
	}
	required := n.signature.ValidInputs
	if required == nil {
		required = n.signature.TimeSeriesInputs
	}
	for _, k := range required {
		in := n.input.Ref(k)
		if in == nil || !in.Valid() {
			return false
		}
	}
	return true
}

// Eval runs one evaluation of the node. The validity gate is the
// executor's, via CanEvaluate; Eval itself only guards against stale timer
// wakeups: when a scheduler exists but did not fire now and no required
// input ticked, the wakeup is spurious and the node stays silent.
func (n *BaseNode) Eval() error {
	scheduledNow := n.scheduler != nil && n.scheduler.IsScheduledNow()
	if n.input != nil && len(n.signature.TimeSeriesInputs) > 0 && n.scheduler != nil && !scheduledNow {
		required := n.signature.ValidInputs
		if required == nil {
			required = n.signature.TimeSeriesInputs
		}
		anyModified := false
		for _, k := range required {
			if in := n.input.Ref(k); in != nil && in.Modified() {
				anyModified = true
				break
			}
		}
		if !anyModified {
			return nil
		}
	}
	out, err := n.evalFn(n.kwargs)
	if err != nil {
		return newNodeError(n, "eval", err)
	}
	if out != nil {
		if err := n.output.ApplyResult(out); err != nil {
			return newNodeError(n, "eval", err)
		}
	}
	if scheduledNow {
		n.scheduler.Advance()
	}
	return nil
}

// beginStop enters the stopping state. Returns false when stop should be
// suppressed.
func (n *BaseNode) beginStop() bool {
	if n.state != Started {
		return false
	}
	n.state = Stopping
	return true
}

func (n *BaseNode) endStop() {
	n.state = Stopped
}

// Stop runs the stop function with its named kwargs.
func (n *BaseNode) Stop() error {
	if !n.beginStop() {
		return nil
	}
	defer n.endStop()
	if n.stopFn != nil {
		if err := n.stopFn(n.filterKwargs(n.signature.StopArgs)); err != nil {
			return newNodeError(n, "stop", err)
		}
	}
	return nil
}

// Dispose releases the kwargs bundle.
func (n *BaseNode) Dispose() {
	if n.state == Disposed {
		return
	}
	n.kwargs = nil
	n.state = Disposed
}

// Notify requests re-evaluation of this node at the current engine time.
// Before start the request is parked as a "start"-tagged timer at MinST and
// resolved when the node starts.
func (n *BaseNode) Notify() {
	if n.state == Started || n.state == Starting {
		n.graph.ScheduleNode(n.nodeNdx, n.graph.Context().CurrentEngineTime())
		return
	}
	n.Scheduler().Schedule(MinST, startTag)
}

// GeneratorNode is a source node whose start obtains a tick iterator and
// whose evaluations replay the iterator against engine time. A value whose
// fire time is at or before the current engine time is applied immediately
// and the next pair pulled; a future pair is buffered and the node
// scheduled for its fire time.
type GeneratorNode struct {
	BaseNode
	generatorFn GeneratorFunc
	generator   TickIterator
	nextValue   any
	hasNext     bool
}

// NewGeneratorNode creates a generator source node.
func NewGeneratorNode(nodeNdx int, owningGraphID []int, signature *NodeSignature, scalars map[string]any,
	generatorFn GeneratorFunc) *GeneratorNode {
	return &GeneratorNode{
		BaseNode: BaseNode{
			nodeNdx:       nodeNdx,
			owningGraphID: owningGraphID,
			signature:     signature,
			scalars:       scalars,
		},
		generatorFn: generatorFn,
	}
}

// Start obtains the iterator and schedules the first evaluation at the
// current engine time.
func (n *GeneratorNode) Start() error {
	if !n.beginStart() {
		return nil
	}
	n.initialiseKwargs()
	gen, err := n.generatorFn(n.kwargs)
	if err != nil {
		return newNodeError(n, "start", err)
	}
	n.generator = gen
	n.state = Started
	n.graph.ScheduleNode(n.nodeNdx, n.graph.Context().CurrentEngineTime())
	return nil
}

// Eval pulls the iterator forward. Pairs timed at or before now are applied
// eagerly so a generator that starts mid-stream catches up within one tick;
// a buffered value from the previous pull is applied before the next future
// pair is scheduled.
func (n *GeneratorNode) Eval() error {
	now := n.graph.Context().CurrentEngineTime()
	for {
		t, value, ok := n.generator.Next()
		if ok && value != nil && !t.After(now) {
			if err := n.output.ApplyResult(value); err != nil {
				return newNodeError(n, "eval", err)
			}
			n.nextValue, n.hasNext = nil, false
			continue
		}
		if n.hasNext {
			if err := n.output.ApplyResult(n.nextValue); err != nil {
				return newNodeError(n, "eval", err)
			}
			n.nextValue, n.hasNext = nil, false
		}
		if ok && value != nil {
			n.nextValue, n.hasNext = value, true
			n.graph.ScheduleNode(n.nodeNdx, t)
		}
		return nil
	}
}

// pushSourceNode is a source node fed by external producer goroutines
// through a SenderReceiver. Each evaluation dequeues at most one value; when
// a value was applied the push-pending flag is re-marked so the executor
// drains further items on the next tick, preserving one engine-time step
// per queued value.
type pushSourceNode struct {
	BaseNode
	pushFn   PushFunc
	receiver *SenderReceiver
}

// NewPushSourceNode creates a push source node.
func NewPushSourceNode(nodeNdx int, owningGraphID []int, signature *NodeSignature, scalars map[string]any,
	pushFn PushFunc) *pushSourceNode {
	return &pushSourceNode{
		BaseNode: BaseNode{
			nodeNdx:       nodeNdx,
			owningGraphID: owningGraphID,
			signature:     signature,
			scalars:       scalars,
		},
		pushFn: pushFn,
	}
}

// Receiver returns the node's sender/receiver while started, or nil.
func (n *pushSourceNode) Receiver() *SenderReceiver { return n.receiver }

// Start constructs the receiver and hands it to the push function, which
// typically spawns or registers the external producer.
func (n *pushSourceNode) Start() error {
	if !n.beginStart() {
		return nil
	}
	n.initialiseKwargs()
	n.receiver = NewSenderReceiver(n.graph.Context())
	if n.pushFn != nil {
		if err := n.pushFn(n.receiver, n.kwargs); err != nil {
			return newNodeError(n, "start", err)
		}
	}
	n.state = Started
	return nil
}

// Eval dequeues one pending value, applies it, and re-flags push-pending if
// a value was present.
func (n *pushSourceNode) Eval() error {
	value, ok := n.receiver.Dequeue()
	if !ok {
		return nil
	}
	if err := n.graph.Context().MarkPushHasPendingValues(); err != nil {
		return newNodeError(n, "eval", err)
	}
	if err := n.output.ApplyResult(value); err != nil {
		return newNodeError(n, "eval", err)
	}
	return nil
}

// Stop closes the receiver to further enqueues.
func (n *pushSourceNode) Stop() error {
	if !n.beginStop() {
		return nil
	}
	defer n.endStop()
	n.receiver.markStopped()
	n.receiver = nil
	return nil
}

// TickSliceIterator adapts a fixed series of (time, value) pairs into a
// TickIterator. Convenient for tests and replayed series.
type TickSliceIterator struct {
	ticks []SeriesTick
	pos   int
}

// SeriesTick is one (fire time, value) pair of a pre-recorded series.
type SeriesTick struct {
	At    time.Time
	Value any
}

// NewTickSliceIterator creates an iterator over the given pairs. The pairs
// must be ordered by time.
func NewTickSliceIterator(ticks []SeriesTick) *TickSliceIterator {
	return &TickSliceIterator{ticks: ticks}
}

// Next implements TickIterator.
func (it *TickSliceIterator) Next() (time.Time, any, bool) {
	if it.pos >= len(it.ticks) {
		return time.Time{}, nil, false
	}
	t := it.ticks[it.pos]
	it.pos++
	return t.At, t.Value, true
}
