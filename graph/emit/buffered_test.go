package emit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBufferedEmitterHistory(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{GraphID: "0", EngineTime: eventTime, Msg: MsgTickStart})
	emitter.Emit(Event{GraphID: "0", EngineTime: eventTime, NodeID: "a[0]", Msg: MsgNodeEval})
	emitter.Emit(Event{GraphID: "0", EngineTime: eventTime.Add(time.Second), NodeID: "b[1]", Msg: MsgNodeEval})
	emitter.Emit(Event{GraphID: "1", Msg: MsgTickStart})

	if got := emitter.History("0"); len(got) != 3 {
		t.Fatalf("expected 3 events for graph 0, got %d", len(got))
	}
	if got := emitter.History("missing"); len(got) != 0 {
		t.Errorf("expected no events for an unknown graph, got %d", len(got))
	}

	t.Run("filter by message and node", func(t *testing.T) {
		evals := emitter.HistoryWithFilter("0", HistoryFilter{Msg: MsgNodeEval})
		if len(evals) != 2 {
			t.Fatalf("expected 2 evals, got %d", len(evals))
		}
		only := emitter.HistoryWithFilter("0", HistoryFilter{NodeID: "b[1]"})
		if len(only) != 1 || only[0].NodeID != "b[1]" {
			t.Errorf("expected only b[1], got %v", only)
		}
	})

	t.Run("filter by engine time window", func(t *testing.T) {
		late := emitter.HistoryWithFilter("0", HistoryFilter{From: eventTime.Add(time.Second)})
		if len(late) != 1 || late[0].NodeID != "b[1]" {
			t.Errorf("expected the later eval only, got %v", late)
		}
		early := emitter.HistoryWithFilter("0", HistoryFilter{Until: eventTime})
		if len(early) != 2 {
			t.Errorf("expected the two events at the first instant, got %v", early)
		}
	})

	t.Run("clear", func(t *testing.T) {
		emitter.Clear("0")
		if got := emitter.History("0"); len(got) != 0 {
			t.Errorf("expected graph 0 cleared, got %d events", len(got))
		}
		if got := emitter.History("1"); len(got) != 1 {
			t.Errorf("expected graph 1 untouched, got %d events", len(got))
		}
		emitter.ClearAll()
		if got := emitter.History("1"); len(got) != 0 {
			t.Errorf("expected everything cleared, got %d events", len(got))
		}
	})
}

func TestBufferedEmitterConcurrent(t *testing.T) {
	emitter := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				emitter.Emit(Event{GraphID: "0", Msg: MsgNodeEval})
			}
		}()
	}
	wg.Wait()
	if got := len(emitter.History("0")); got != 800 {
		t.Errorf("expected 800 events, got %d", got)
	}
	if err := emitter.EmitBatch(context.Background(), []Event{{GraphID: "0", Msg: MsgTickEnd}}); err != nil {
		t.Errorf("EmitBatch failed: %v", err)
	}
}
