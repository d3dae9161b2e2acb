// Package sqlite keeps the rating update log in a local SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"assessment-rating-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS rating_update_log (
    id         TEXT PRIMARY KEY,
    phase_id   TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    changes    TEXT NOT NULL,
    consumed   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS rating_update_log_phase_idx ON rating_update_log (phase_id, created_at);
`

// UpdateLogStore implements rating.UpdateLogRepository on SQLite.
type UpdateLogStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*UpdateLogStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// single connection; appends are serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &UpdateLogStore{db: db}, nil
}

func (s *UpdateLogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *UpdateLogStore) AppendUpdateLog(ctx context.Context, entry domain.UpdateLogEntry) error {
	changes, err := json.Marshal(nonNil(entry.Changes))
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	consumed, err := json.Marshal(nonNil(entry.Consumed))
	if err != nil {
		return fmt.Errorf("encode consumed: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rating_update_log (id, phase_id, created_at, changes, consumed) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.PhaseID, entry.CreatedAt.UTC().UnixMilli(), string(changes), string(consumed),
	)
	if err != nil {
		return fmt.Errorf("append update log: %w", err)
	}
	return nil
}

// Entries returns the log of one phase, oldest first.
func (s *UpdateLogStore) Entries(ctx context.Context, phaseID string) ([]domain.UpdateLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase_id, created_at, changes, consumed FROM rating_update_log WHERE phase_id = ? ORDER BY created_at, id`,
		phaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query update log: %w", err)
	}
	defer rows.Close()

	var out []domain.UpdateLogEntry
	for rows.Next() {
		var (
			entry             domain.UpdateLogEntry
			createdAt         int64
			changes, consumed string
		)
		if err := rows.Scan(&entry.ID, &entry.PhaseID, &createdAt, &changes, &consumed); err != nil {
			return nil, fmt.Errorf("scan update log: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(changes), &entry.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
		if err := json.Unmarshal([]byte(consumed), &entry.Consumed); err != nil {
			return nil, fmt.Errorf("decode consumed: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
