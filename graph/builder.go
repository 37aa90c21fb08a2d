package graph

import (
	"fmt"
	"sync/atomic"
)

// NodeBuilder produces a live node at a position within a graph under
// construction.
type NodeBuilder interface {
	// MakeInstance constructs the node for the given owning graph id and
	// node index, including its input and output ports.
	MakeInstance(owningGraphID []int, nodeNdx int) (Node, error)

	// ReleaseInstance releases resources the build created for the node.
	ReleaseInstance(n Node)
}

// Edge binds a source node's output position to a destination node's input
// position. Paths address sub-positions within composite ports; edges are
// immutable after build.
type Edge struct {
	SrcNode    int
	OutputPath Path
	DstNode    int
	InputPath  Path
}

// GraphBuilder turns an ordered set of node builders plus edge wiring into
// live Graph instances.
type GraphBuilder interface {
	// MakeInstance constructs a graph with the given nested-graph id.
	MakeInstance(graphID []int) (*Graph, error)

	// ReleaseInstance releases the graph and the resources the build
	// created.
	ReleaseInstance(g *Graph)
}

// GraphBuilderConstructor builds a GraphBuilder from node builders and
// edges. An embedding may declare its own constructor on the factory slot
// to substitute an alternate implementation.
type GraphBuilderConstructor func(nodeBuilders []NodeBuilder, edges []Edge) GraphBuilder

// graphBuilder is the default GraphBuilder implementation.
type graphBuilder struct {
	nodeBuilders []NodeBuilder
	edges        []Edge
}

// NewGraphBuilder creates the default GraphBuilder over the given node
// builders and edges. Node builders must already be in rank order: push
// sources first, then ordinary nodes, every edge pointing from a lower to a
// higher index.
func NewGraphBuilder(nodeBuilders []NodeBuilder, edges []Edge) GraphBuilder {
	return &graphBuilder{nodeBuilders: nodeBuilders, edges: edges}
}

func (b *graphBuilder) MakeInstance(graphID []int) (*Graph, error) {
	nodes := make([]Node, len(b.nodeBuilders))
	for i, nb := range b.nodeBuilders {
		n, err := nb.MakeInstance(graphID, i)
		if err != nil {
			return nil, fmt.Errorf("building node %d: %w", i, err)
		}
		nodes[i] = n
	}

	pushEnd := 0
	for i, n := range nodes {
		if n.Signature().NodeType == PushSourceNode {
			if i != pushEnd {
				return nil, fmt.Errorf("push source node %d is not in the push-source prefix", i)
			}
			pushEnd++
		}
	}

	for _, e := range b.edges {
		if e.SrcNode < 0 || e.SrcNode >= len(nodes) || e.DstNode < 0 || e.DstNode >= len(nodes) {
			return nil, fmt.Errorf("edge %d→%d out of range", e.SrcNode, e.DstNode)
		}
		if e.SrcNode >= e.DstNode {
			return nil, fmt.Errorf("edge %d→%d violates rank order", e.SrcNode, e.DstNode)
		}
		src := nodes[e.SrcNode].Output()
		if src == nil {
			return nil, fmt.Errorf("edge %d→%d: source has no output", e.SrcNode, e.DstNode)
		}
		out, err := src.Resolve(e.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("edge %d→%d output %s: %w", e.SrcNode, e.DstNode, e.OutputPath, err)
		}
		dst := nodes[e.DstNode].Input()
		if dst == nil {
			return nil, fmt.Errorf("edge %d→%d: destination has no input", e.SrcNode, e.DstNode)
		}
		in, err := dst.Resolve(e.InputPath)
		if err != nil {
			return nil, fmt.Errorf("edge %d→%d input %s: %w", e.SrcNode, e.DstNode, e.InputPath, err)
		}
		if err := in.BindOutput(out); err != nil {
			return nil, fmt.Errorf("edge %d→%d: %w", e.SrcNode, e.DstNode, err)
		}
	}

	return NewGraph(graphID, nodes, pushEnd), nil
}

func (b *graphBuilder) ReleaseInstance(g *Graph) {
	for i, n := range g.Nodes() {
		b.nodeBuilders[i].ReleaseInstance(n)
	}
}

// declaredGraphBuilder is the process-wide declaration slot for the graph
// builder factory. At most one declaration is active at a time, enforced
// with compare-and-swap.
var declaredGraphBuilder atomic.Pointer[GraphBuilderConstructor]

// DeclareGraphBuilder installs an alternate GraphBuilder constructor.
// Returns ErrAlreadyDeclared if a declaration is already active; the slot
// is left unchanged.
func DeclareGraphBuilder(c GraphBuilderConstructor) error {
	if !declaredGraphBuilder.CompareAndSwap(nil, &c) {
		return ErrAlreadyDeclared
	}
	return nil
}

// UnDeclareGraphBuilder clears the declaration slot.
func UnDeclareGraphBuilder() {
	declaredGraphBuilder.Store(nil)
}

// IsGraphBuilderDeclared reports whether a declaration is active.
func IsGraphBuilderDeclared() bool {
	return declaredGraphBuilder.Load() != nil
}

// DeclaredGraphBuilder returns the active declaration, or ErrNotDeclared.
func DeclaredGraphBuilder() (GraphBuilderConstructor, error) {
	c := declaredGraphBuilder.Load()
	if c == nil {
		return nil, ErrNotDeclared
	}
	return *c, nil
}

// DefaultGraphBuilder returns the built-in GraphBuilder constructor.
func DefaultGraphBuilder() GraphBuilderConstructor {
	return NewGraphBuilder
}

// MakeGraphBuilder builds a GraphBuilder using the declared constructor if
// one is active, otherwise the default.
func MakeGraphBuilder(nodeBuilders []NodeBuilder, edges []Edge) GraphBuilder {
	if c := declaredGraphBuilder.Load(); c != nil {
		return (*c)(nodeBuilders, edges)
	}
	return NewGraphBuilder(nodeBuilders, edges)
}

// BaseNodeBuilder builds compute, sink, and plain source nodes.
type BaseNodeBuilder struct {
	Signature     *NodeSignature
	Scalars       map[string]any
	InputBuilder  InputBuilder
	OutputBuilder OutputBuilder
	EvalFn        EvalFunc
	StartFn       StartFunc
	StopFn        StopFunc
}

// MakeInstance implements NodeBuilder.
func (b *BaseNodeBuilder) MakeInstance(owningGraphID []int, nodeNdx int) (Node, error) {
	n := NewNode(nodeNdx, owningGraphID, b.Signature, b.Scalars, b.EvalFn, b.StartFn, b.StopFn)
	b.buildPorts(n)
	return n, nil
}

func (b *BaseNodeBuilder) buildPorts(n Node) {
	if b.InputBuilder != nil {
		n.SetInput(b.InputBuilder.MakeInstance(n))
	}
	if b.OutputBuilder != nil {
		n.SetOutput(b.OutputBuilder.MakeInstance(n))
	}
}

// ReleaseInstance implements NodeBuilder.
func (b *BaseNodeBuilder) ReleaseInstance(n Node) {
	n.Dispose()
}

// GeneratorNodeBuilder builds generator source nodes.
type GeneratorNodeBuilder struct {
	Signature     *NodeSignature
	Scalars       map[string]any
	OutputBuilder OutputBuilder
	GeneratorFn   GeneratorFunc
}

// MakeInstance implements NodeBuilder.
func (b *GeneratorNodeBuilder) MakeInstance(owningGraphID []int, nodeNdx int) (Node, error) {
	n := NewGeneratorNode(nodeNdx, owningGraphID, b.Signature, b.Scalars, b.GeneratorFn)
	if b.OutputBuilder != nil {
		n.SetOutput(b.OutputBuilder.MakeInstance(n))
	}
	return n, nil
}

// ReleaseInstance implements NodeBuilder.
func (b *GeneratorNodeBuilder) ReleaseInstance(n Node) {
	n.Dispose()
}

// PushSourceNodeBuilder builds push source nodes.
type PushSourceNodeBuilder struct {
	Signature     *NodeSignature
	Scalars       map[string]any
	OutputBuilder OutputBuilder
	PushFn        PushFunc
}

// MakeInstance implements NodeBuilder.
func (b *PushSourceNodeBuilder) MakeInstance(owningGraphID []int, nodeNdx int) (Node, error) {
	if b.Signature.NodeType != PushSourceNode {
		return nil, fmt.Errorf("push source builder requires a PushSourceNode signature, got %v", b.Signature.NodeType)
	}
	n := NewPushSourceNode(nodeNdx, owningGraphID, b.Signature, b.Scalars, b.PushFn)
	if b.OutputBuilder != nil {
		n.SetOutput(b.OutputBuilder.MakeInstance(n))
	}
	return n, nil
}

// ReleaseInstance implements NodeBuilder.
func (b *PushSourceNodeBuilder) ReleaseInstance(n Node) {
	n.Dispose()
}
