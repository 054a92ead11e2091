// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTurnStore persists turn records in SQLite.
type SQLiteTurnStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path and ensures the
// schema. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteTurnStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteTurnStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteTurnStore wraps an existing database handle and ensures schema.
func NewSQLiteTurnStore(db *sql.DB) (*SQLiteTurnStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureTurnSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteTurnStore{db: db}, nil
}

// Record stores a single turn record.
func (s *SQLiteTurnStore) Record(ctx context.Context, rec TurnRecord) error {
	sources, err := encodeSources(rec.Sources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO concierge_turns (
			turn_id, utterance, answer_text, sources_json, partial_failure,
			rounds, invocations, failures, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.TurnID,
		rec.Utterance,
		rec.AnswerText,
		string(sources),
		rec.PartialFailure,
		rec.Rounds,
		rec.Invocations,
		rec.Failures,
		normalizeTime(rec.StartedAt),
		rec.Duration.Milliseconds(),
	)
	return err
}

// List returns turn records matching the filter, oldest first.
func (s *SQLiteTurnStore) List(ctx context.Context, filter TurnFilter) ([]TurnRecord, error) {
	query := `
		SELECT turn_id, utterance, answer_text, sources_json, partial_failure,
		       rounds, invocations, failures, started_at, duration_ms
		FROM concierge_turns
	`
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
	if filter.TurnID != "" {
		addFilter("turn_id = ?", filter.TurnID)
	}
	if filter.FailuresOnly {
		addFilter("partial_failure = ?", true)
	}
	query += where + " ORDER BY started_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var (
			rec        TurnRecord
			sourcesRaw string
			started    sql.NullTime
			durationMS int64
		)
		if err := rows.Scan(
			&rec.TurnID,
			&rec.Utterance,
			&rec.AnswerText,
			&sourcesRaw,
			&rec.PartialFailure,
			&rec.Rounds,
			&rec.Invocations,
			&rec.Failures,
			&started,
			&durationMS,
		); err != nil {
			return nil, err
		}
		if sourcesRaw != "" {
			if sources, err := decodeSources([]byte(sourcesRaw)); err == nil {
				rec.Sources = sources
			}
		}
		if started.Valid {
			rec.StartedAt = started.Time
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Close releases the database handle.
func (s *SQLiteTurnStore) Close() error {
	return s.db.Close()
}

func ensureTurnSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS concierge_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id TEXT NOT NULL,
			utterance TEXT NOT NULL,
			answer_text TEXT,
			sources_json TEXT,
			partial_failure BOOLEAN NOT NULL DEFAULT 0,
			rounds INTEGER NOT NULL DEFAULT 0,
			invocations INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_concierge_turns_turn ON concierge_turns(turn_id);
		CREATE INDEX IF NOT EXISTS idx_concierge_turns_failure ON concierge_turns(partial_failure);
	`)
	return err
}

func normalizeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
