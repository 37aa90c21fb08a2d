package record

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	t.Run("missing run returns not found", func(t *testing.T) {
		if _, err := store.LoadTicks(ctx, "run-404", "node"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ticks round trip with JSON values", func(t *testing.T) {
		values := []any{1.5, "text", map[string]any{"bid": 99.5}}
		for i, v := range values {
			at := tickTime.Add(time.Duration(i) * time.Second)
			if err := store.SaveTick(ctx, "run-001", "quote[0]", at, v); err != nil {
				t.Fatalf("SaveTick failed: %v", err)
			}
		}

		ticks, err := store.LoadTicks(ctx, "run-001", "quote[0]")
		if err != nil {
			t.Fatalf("LoadTicks failed: %v", err)
		}
		if len(ticks) != 3 {
			t.Fatalf("expected 3 ticks, got %d", len(ticks))
		}
		if ticks[0].Value != 1.5 || ticks[1].Value != "text" {
			t.Errorf("unexpected scalar values: %v", ticks)
		}
		nested, ok := ticks[2].Value.(map[string]any)
		if !ok || nested["bid"] != 99.5 {
			t.Errorf("expected nested value to round trip, got %v", ticks[2].Value)
		}
		for i, tick := range ticks {
			want := tickTime.Add(time.Duration(i) * time.Second)
			if !tick.At.Equal(want) {
				t.Errorf("tick %d: expected engine time %s, got %s", i, want, tick.At)
			}
		}
	})

	t.Run("closed store rejects use", func(t *testing.T) {
		closed := newTestSQLiteStore(t)
		if err := closed.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := closed.Close(); err != nil {
			t.Errorf("expected idempotent Close, got %v", err)
		}
		if err := closed.SaveTick(ctx, "r", "n", tickTime, 1); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		if _, err := closed.LoadTicks(ctx, "r", "n"); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}
