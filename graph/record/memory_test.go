package record

import (
	"context"
	"errors"
	"testing"
	"time"
)

var tickTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	t.Run("missing run returns not found", func(t *testing.T) {
		if _, err := store.LoadTicks(ctx, "run-404", "node"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ticks round trip in order", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			at := tickTime.Add(time.Duration(i) * time.Second)
			if err := store.SaveTick(ctx, "run-001", "double[1]", at, i*2); err != nil {
				t.Fatalf("SaveTick failed: %v", err)
			}
		}
		ticks, err := store.LoadTicks(ctx, "run-001", "double[1]")
		if err != nil {
			t.Fatalf("LoadTicks failed: %v", err)
		}
		if len(ticks) != 3 {
			t.Fatalf("expected 3 ticks, got %d", len(ticks))
		}
		for i, tick := range ticks {
			want := tickTime.Add(time.Duration(i) * time.Second)
			if !tick.At.Equal(want) || tick.Value != i*2 {
				t.Errorf("tick %d: expected %d@%s, got %v@%s", i, i*2, want, tick.Value, tick.At)
			}
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		if err := store.SaveTick(ctx, "run-002", "double[1]", tickTime, 99); err != nil {
			t.Fatalf("SaveTick failed: %v", err)
		}
		ticks, err := store.LoadTicks(ctx, "run-001", "double[1]")
		if err != nil {
			t.Fatalf("LoadTicks failed: %v", err)
		}
		if len(ticks) != 3 {
			t.Errorf("expected run-001 unaffected, got %d ticks", len(ticks))
		}
	})

	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
