package graph

import (
	"errors"
	"testing"
)

func TestGraphBuilderWiring(t *testing.T) {
	var got []tickRecord
	g := mustBuild(t,
		[]NodeBuilder{
			generatorBuilder("source", []SeriesTick{{At: testStart, Value: 5}}),
			computeBuilder("negate", func(v any) any { return -v.(int) }),
			sinkBuilder("capture", &got),
		},
		[]Edge{simpleEdge(0, 1), simpleEdge(1, 2)},
	)

	if len(g.Nodes()) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes()))
	}
	if g.PushSourceNodesEnd() != 0 {
		t.Errorf("expected no push sources, got end index %d", g.PushSourceNodesEnd())
	}
	for i, n := range g.Nodes() {
		if n.NodeNdx() != i {
			t.Errorf("node %d carries index %d", i, n.NodeNdx())
		}
		if n.Graph() != g {
			t.Errorf("node %d is not owned by the built graph", i)
		}
	}
}

func TestGraphBuilderPushSourcePrefix(t *testing.T) {
	push := &PushSourceNodeBuilder{
		Signature:     &NodeSignature{Name: "push", NodeType: PushSourceNode},
		OutputBuilder: ValueOutputBuilder(),
	}
	ordinary := generatorBuilder("gen", nil)

	t.Run("push sources lead the rank order", func(t *testing.T) {
		g, err := MakeGraphBuilder([]NodeBuilder{push, ordinary}, nil).MakeInstance(nil)
		if err != nil {
			t.Fatalf("MakeInstance failed: %v", err)
		}
		if g.PushSourceNodesEnd() != 1 {
			t.Errorf("expected push prefix of 1, got %d", g.PushSourceNodesEnd())
		}
	})

	t.Run("push source after an ordinary node is rejected", func(t *testing.T) {
		if _, err := MakeGraphBuilder([]NodeBuilder{ordinary, push}, nil).MakeInstance(nil); err == nil {
			t.Error("expected an out-of-prefix push source to fail the build")
		}
	})
}

func TestGraphBuilderEdgeValidation(t *testing.T) {
	builders := []NodeBuilder{
		generatorBuilder("source", nil),
		computeBuilder("compute", func(v any) any { return v }),
	}

	t.Run("edge against rank order is rejected", func(t *testing.T) {
		_, err := MakeGraphBuilder(builders, []Edge{simpleEdge(1, 0)}).MakeInstance(nil)
		if err == nil {
			t.Error("expected a back edge to fail the build")
		}
	})

	t.Run("unresolvable input path is rejected", func(t *testing.T) {
		edges := []Edge{{SrcNode: 0, DstNode: 1, InputPath: Path{Named("missing")}}}
		_, err := MakeGraphBuilder(builders, edges).MakeInstance(nil)
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("expected ErrPathNotFound, got %v", err)
		}
	})
}

func TestGraphBuilderFactoryDeclaration(t *testing.T) {
	t.Cleanup(UnDeclareGraphBuilder)

	if IsGraphBuilderDeclared() {
		t.Fatal("expected a clean declaration slot")
	}
	if _, err := DeclaredGraphBuilder(); !errors.Is(err, ErrNotDeclared) {
		t.Errorf("expected ErrNotDeclared, got %v", err)
	}

	made := 0
	custom := func(nodeBuilders []NodeBuilder, edges []Edge) GraphBuilder {
		made++
		return NewGraphBuilder(nodeBuilders, edges)
	}
	if err := DeclareGraphBuilder(custom); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := DeclareGraphBuilder(custom); !errors.Is(err, ErrAlreadyDeclared) {
		t.Errorf("expected ErrAlreadyDeclared on double declare, got %v", err)
	}
	if !IsGraphBuilderDeclared() {
		t.Error("expected the declaration to be visible")
	}

	MakeGraphBuilder(nil, nil)
	if made != 1 {
		t.Errorf("expected the declared constructor to be used, made=%d", made)
	}

	UnDeclareGraphBuilder()
	MakeGraphBuilder(nil, nil)
	if made != 1 {
		t.Errorf("expected the default constructor after undeclare, made=%d", made)
	}
}

func TestTimeSeriesBuilderFactoryDeclaration(t *testing.T) {
	t.Cleanup(UnDeclareTimeSeriesBuilders)

	outputs := 0
	c := TimeSeriesBuilderConstructors{
		Output: func(owner Node) TimeSeriesOutput {
			outputs++
			return NewValueOutput(owner)
		},
	}
	if err := DeclareTimeSeriesBuilders(c); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := DeclareTimeSeriesBuilders(c); !errors.Is(err, ErrAlreadyDeclared) {
		t.Errorf("expected ErrAlreadyDeclared, got %v", err)
	}

	MakeOutput(nil)
	if outputs != 1 {
		t.Errorf("expected the declared output constructor to be used, outputs=%d", outputs)
	}
	// The input constructor was not declared; the default applies.
	if in := MakeInput(nil, []string{"a"}); in.Ref("a") == nil {
		t.Error("expected the default input constructor to build the bundle")
	}
}

func TestGraphStopIsBestEffort(t *testing.T) {
	stopErr := errors.New("stop failed")
	stopped := make([]bool, 2)
	mk := func(i int, fail bool) NodeBuilder {
		return &BaseNodeBuilder{
			Signature:     &NodeSignature{Name: "n", NodeType: SourceNode},
			OutputBuilder: ValueOutputBuilder(),
			EvalFn:        func(Kwargs) (any, error) { return nil, nil },
			StopFn: func(Kwargs) error {
				stopped[i] = true
				if fail {
					return stopErr
				}
				return nil
			},
		}
	}
	g := mustBuild(t, []NodeBuilder{mk(0, true), mk(1, false)}, nil)
	g.SetContext(NewBackTestExecutionContext(testStart, nil))
	g.Initialise()
	if err := g.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := g.Stop()
	if !errors.Is(err, stopErr) {
		t.Errorf("expected the stop failure to surface, got %v", err)
	}
	if !stopped[0] || !stopped[1] {
		t.Errorf("expected every node to be stopped despite the failure, got %v", stopped)
	}
}
