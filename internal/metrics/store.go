package metrics

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scalars (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    value REAL NOT NULL,
    step INTEGER NOT NULL,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scalars_run_id ON scalars(run_id);
CREATE INDEX IF NOT EXISTS idx_scalars_name ON scalars(run_id, name);
`

// EventStore is a SQLite-backed Sink. Every scalar is persisted under the
// run id it was recorded for, so metric histories from successive runs can
// coexist in one database file.
type EventStore struct {
	db    *sql.DB
	runID string
}

// ScalarEvent is one persisted metric event.
type ScalarEvent struct {
	Name       string
	Value      float64
	Step       int64
	RecordedAt time.Time
}

// OpenEventStore opens (creating if needed) the metrics database at path and
// scopes all writes to the given run id.
func OpenEventStore(path, runID string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening metrics database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running metrics migrations: %w", err)
	}

	return &EventStore{db: db, runID: runID}, nil
}

// RecordScalar implements Sink.
func (s *EventStore) RecordScalar(name string, value float64, step int64) error {
	if s.db == nil {
		return fmt.Errorf("metrics store is closed")
	}
	_, err := s.db.Exec(
		`INSERT INTO scalars (run_id, name, value, step) VALUES (?, ?, ?, ?)`,
		s.runID, name, value, step,
	)
	if err != nil {
		return fmt.Errorf("recording scalar %s: %w", name, err)
	}
	return nil
}

// Scalars returns all events recorded for a metric name in this run, in
// insertion order.
func (s *EventStore) Scalars(name string) ([]ScalarEvent, error) {
	if s.db == nil {
		return nil, fmt.Errorf("metrics store is closed")
	}
	rows, err := s.db.Query(
		`SELECT name, value, step, recorded_at FROM scalars WHERE run_id = ? AND name = ? ORDER BY id`,
		s.runID, name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ScalarEvent
	for rows.Next() {
		var ev ScalarEvent
		if err := rows.Scan(&ev.Name, &ev.Value, &ev.Step, &ev.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close implements Sink. Closing an already-closed store is a no-op.
func (s *EventStore) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}
