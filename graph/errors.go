package graph

import (
	"errors"
	"fmt"
)

// ErrEndBeforeStart indicates that Run was invoked with an end time earlier.
// than the start time. The run fails before any engine state changes.
var ErrEndBeforeStart = errors.New("end time cannot be before the start time")

// ErrPushNotSupported indicates that a push source was used with a back-test
// engine. Back-test clocks are simulated and cannot be woken by external
// producers, so push sources are rejected on the first attempt.
var ErrPushNotSupported = errors.New("back test engines should not contain push source nodes")

// ErrAlreadyStarted indicates a start was attempted on an engine that is
// already running.
var ErrAlreadyStarted = errors.New("engine has already been started")

// ErrAlreadyDeclared indicates a second Declare on a process-wide builder
// factory slot. At most one declaration may be active at a time.
var ErrAlreadyDeclared = errors.New("a builder has already been declared")

// ErrNotDeclared indicates Declared was called on a factory slot with no
// active declaration.
var ErrNotDeclared = errors.New("no builder has been declared")

// ErrReceiverStopped indicates an enqueue into a SenderReceiver whose owning
// push-source node has already stopped.
var ErrReceiverStopped = errors.New("cannot enqueue into a stopped receiver")

// ErrPathNotFound indicates an edge path that does not resolve to a position
// within the addressed port tree.
var ErrPathNotFound = errors.New("path does not resolve within the port")

// NodeError wraps an error raised by a node's start, eval, or stop function
// with the identity of the failing node. Node errors propagate out of the
// executor and terminate the run; the scoped guard still attempts stop.
type NodeError struct {
	// NodeNdx is the index of the failing node within its graph.
	NodeNdx int

	// NodeName is the signature name of the failing node.
	NodeName string

	// Phase is the lifecycle phase in which the error occurred
	// ("start", "eval", "stop").
	Phase string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s[%d] %s: %v", e.NodeName, e.NodeNdx, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is / errors.As support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

func newNodeError(n Node, phase string, cause error) *NodeError {
	return &NodeError{
		NodeNdx:  n.NodeNdx(),
		NodeName: n.Signature().Name,
		Phase:    phase,
		Cause:    cause,
	}
}
