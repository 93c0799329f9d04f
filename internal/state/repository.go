package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository is the durable-storage adapter for the state document.
//
// Only the durable subset is stored: names, switches, schedules, timers
// and system settings. Physical positions and hardware liveness are
// never persisted. A failed Save is logged by the caller and never
// rolls back the in-memory document.
type Repository interface {
	// Load returns the stored document, or ErrNotFound when no document
	// exists under DocumentKey.
	Load(ctx context.Context) (Document, error)

	// Save upserts the durable subset of the document.
	Save(ctx context.Context, doc Document) error
}

// SQLiteRepository persists the state document as a single row of JSON
// columns in the state_documents table.
type SQLiteRepository struct {
	db  *sql.DB
	key string
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, key: DocumentKey}
}

// Load retrieves the durable document fields. Missing keys inside a
// stored column fall back to defaults, so a document written by an
// older schema still loads cleanly.
func (r *SQLiteRepository) Load(ctx context.Context) (Document, error) {
	var namesJSON, switchesJSON, schedulesJSON, timersJSON, systemJSON string

	err := r.db.QueryRowContext(ctx, `
		SELECT names, switches, schedules, timers, system
		FROM state_documents
		WHERE key = ?
	`, r.key).Scan(&namesJSON, &switchesJSON, &schedulesJSON, &timersJSON, &systemJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading state document: %w", err)
	}

	doc := DefaultDocument()
	for _, col := range []struct {
		data string
		dest any
	}{
		{namesJSON, &doc.Names},
		{switchesJSON, &doc.Switches},
		{schedulesJSON, &doc.Schedules},
		{timersJSON, &doc.Timers},
		{systemJSON, &doc.System},
	} {
		if col.data == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.data), col.dest); err != nil {
			return Document{}, fmt.Errorf("decoding state document: %w", err)
		}
	}

	return doc, nil
}

// Save upserts the durable subset of the document under DocumentKey.
func (r *SQLiteRepository) Save(ctx context.Context, doc Document) error {
	names, err := json.Marshal(doc.Names)
	if err != nil {
		return fmt.Errorf("encoding names: %w", err)
	}
	switches, err := json.Marshal(doc.Switches)
	if err != nil {
		return fmt.Errorf("encoding switches: %w", err)
	}
	schedules, err := json.Marshal(doc.Schedules)
	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}
	timers, err := json.Marshal(doc.Timers)
	if err != nil {
		return fmt.Errorf("encoding timers: %w", err)
	}
	system, err := json.Marshal(doc.System)
	if err != nil {
		return fmt.Errorf("encoding system: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO state_documents (key, names, switches, schedules, timers, system, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			names      = excluded.names,
			switches   = excluded.switches,
			schedules  = excluded.schedules,
			timers     = excluded.timers,
			system     = excluded.system,
			updated_at = excluded.updated_at
	`, r.key, names, switches, schedules, timers, system,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving state document: %w", err)
	}
	return nil
}
