package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
//
// It records ticks in a single-file database, suited to development and
// single-process runs: zero setup, auto-migration on first use, WAL mode
// for concurrent reads. Values are JSON-encoded.
//
// The path follows modernc.org/sqlite conventions: a file path, or
// ":memory:" for an in-memory database that is lost on close.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring sqlite: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS recorded_ticks (
			run_id      TEXT    NOT NULL,
			node_id     TEXT    NOT NULL,
			engine_time INTEGER NOT NULL,
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			value       TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_recorded_ticks_run_node
			ON recorded_ticks(run_id, node_id, engine_time);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTick persists one tick. The value is JSON-encoded; the engine time
// is stored as nanoseconds since the Unix epoch.
func (s *SQLiteStore) SaveTick(ctx context.Context, runID, nodeID string, at time.Time, value any) error {
	if err := s.guard(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding tick value: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recorded_ticks (run_id, node_id, engine_time, value) VALUES (?, ?, ?, ?)`,
		runID, nodeID, at.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("saving tick: %w", err)
	}
	return nil
}

// LoadTicks returns the node's recorded series in engine-time order.
func (s *SQLiteStore) LoadTicks(ctx context.Context, runID, nodeID string) ([]Tick, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT engine_time, value FROM recorded_ticks
		 WHERE run_id = ? AND node_id = ? ORDER BY engine_time, seq`,
		runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("loading ticks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ticks []Tick
	for rows.Next() {
		var nanos int64
		var data string
		if err := rows.Scan(&nanos, &data); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			return nil, fmt.Errorf("decoding tick value: %w", err)
		}
		ticks = append(ticks, Tick{
			NodeID: nodeID,
			At:     time.Unix(0, nanos).UTC(),
			Value:  value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading ticks: %w", err)
	}
	if len(ticks) == 0 {
		return nil, ErrNotFound
	}
	return ticks, nil
}

// Close closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
