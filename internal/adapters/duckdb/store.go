// Package duckdb persists the agent state snapshot and the audit log in an
// embedded DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"

	_ "github.com/marcboeker/go-duckdb"
)

// snapshotKey is the single well-known key the queue+history snapshot lives
// under.
const snapshotKey = "aria/agent-state"

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			queue JSON,
			history JSON,
			updated_at TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS audit_log_seq`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('audit_log_seq'),
			note TEXT,
			recorded_at TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot under the well-known key.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	queueJSON, err := json.Marshal(snap.Queue)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	historyJSON, err := json.Marshal(snap.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
	INSERT INTO snapshots (key, queue, history, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		queue = excluded.queue,
		history = excluded.history,
		updated_at = excluded.updated_at;
	`
	_, err = s.db.ExecContext(ctx, query, snapshotKey, string(queueJSON), string(historyJSON), time.Now())
	return err
}

// Load reads the snapshot back. A missing row yields an empty snapshot, not
// an error: first boot has nothing to reload.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	query := `SELECT CAST(queue AS TEXT), CAST(history AS TEXT) FROM snapshots WHERE key = ?`
	row := s.db.QueryRowContext(ctx, query, snapshotKey)

	var queueJSON, historyJSON string
	if err := row.Scan(&queueJSON, &historyJSON); err != nil {
		if err == sql.ErrNoRows {
			return domain.Snapshot{}, nil
		}
		return domain.Snapshot{}, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(queueJSON), &snap.Queue); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal queue: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return snap, nil
}

// Record appends an audit note. Callers treat failures as non-fatal.
func (s *Store) Record(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (note, recorded_at) VALUES (?, ?)`, text, time.Now())
	return err
}

// RecentAuditNotes returns the most recent audit entries, newest first.
func (s *Store) RecentAuditNotes(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
