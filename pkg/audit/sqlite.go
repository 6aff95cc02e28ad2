// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists audit events in SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (or creates) the SQLite file at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single audit event.
func (s *SQLiteStore) Record(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_audit_events (run_id, session_id, phase, status, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.SessionID,
		event.Phase,
		event.Status,
		event.Detail,
		normalizeTime(event.At),
	)
	return err
}

// List returns audit events matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	query := `SELECT run_id, session_id, phase, status, detail, at FROM run_audit_events`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.SessionID != "" {
		addFilter("session_id = ?", filter.SessionID)
	}
	if filter.Phase != "" {
		addFilter("phase = ?", filter.Phase)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev     Event
			detail sql.NullString
			at     sql.NullTime
		)
		if err := rows.Scan(&ev.RunID, &ev.SessionID, &ev.Phase, &ev.Status, &detail, &at); err != nil {
			return nil, err
		}
		ev.Detail = detail.String
		if at.Valid {
			ev.At = at.Time.UTC()
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the database handle when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_run_audit_run ON run_audit_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_run_audit_session ON run_audit_events(session_id);
	`)
	return err
}
