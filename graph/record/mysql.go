package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store for shared, durable tick recording.
//
// The DSN follows go-sql-driver/mysql conventions, e.g.:
//
//	user:password@tcp(127.0.0.1:3306)/hgraph?parseTime=true
//
// The schema is migrated on first use. Values are JSON-encoded.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewMySQLStore connects to the database identified by dsn and migrates
// the schema.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS recorded_ticks (
			seq         BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id      VARCHAR(255) NOT NULL,
			node_id     VARCHAR(255) NOT NULL,
			engine_time BIGINT       NOT NULL,
			value       JSON         NOT NULL,
			INDEX idx_recorded_ticks_run_node (run_id, node_id, engine_time)
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating mysql schema: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// SaveTick persists one tick.
func (s *MySQLStore) SaveTick(ctx context.Context, runID, nodeID string, at time.Time, value any) error {
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
func (s *MySQLStore) LoadTicks(ctx context.Context, runID, nodeID string) ([]Tick, error) {
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
		var data []byte
		if err := rows.Scan(&nanos, &data); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
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

// Close closes the connection pool. Idempotent.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
