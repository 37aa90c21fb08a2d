package emit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var eventTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLogEmitterText(t *testing.T) {
	var buf strings.Builder
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{
		GraphID:    "0",
		EngineTime: eventTime,
		NodeID:     "double[1]",
		Msg:        MsgNodeEval,
		Meta:       map[string]any{"duration_ms": 0.5},
	})

	out := buf.String()
	for _, want := range []string{"[node_eval]", "graphID=0", "nodeID=double[1]", "duration_ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf strings.Builder
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{GraphID: "0", EngineTime: eventTime, Msg: MsgTickStart})

	var decoded map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if decoded["msg"] != MsgTickStart || decoded["graphID"] != "0" {
		t.Errorf("unexpected JSON fields: %v", decoded)
	}
	if _, ok := decoded["nodeID"]; ok {
		t.Error("expected empty nodeID to be omitted")
	}
}

func TestLogEmitterBatch(t *testing.T) {
	var buf strings.Builder
	emitter := NewLogEmitter(&buf, true)

	events := []Event{
		{GraphID: "0", Msg: MsgTickStart},
		{GraphID: "0", Msg: MsgTickEnd},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
}

func TestNullEmitter(t *testing.T) {
	emitter := NewNullEmitter()
	emitter.Emit(Event{Msg: MsgTickStart})
	if err := emitter.EmitBatch(context.Background(), []Event{{Msg: MsgTickEnd}}); err != nil {
		t.Errorf("EmitBatch failed: %v", err)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
}
