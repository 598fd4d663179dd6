package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// TranscriptStore keeps model exchanges per task in sqlite. Tasks themselves
// are never persisted.
type TranscriptStore struct {
	DB *sql.DB
}

// NewTranscriptStore opens (or creates) the database at dbPath. ":memory:"
// gives a private in-memory store.
func NewTranscriptStore(dbPath string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_task ON transcripts(task_id, id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise transcript store: %w", err)
		}
	}
	return &TranscriptStore{DB: db}, nil
}

func (s *TranscriptStore) Append(ctx context.Context, taskID, role, content string) error {
	query := `INSERT INTO transcripts (task_id, role, content, timestamp) VALUES (?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, taskID, role, content, time.Now().UTC())
	return err
}

// List returns the last limit entries of a task in chronological order.
// limit <= 0 returns everything.
func (s *TranscriptStore) List(ctx context.Context, taskID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, task_id, role, content, timestamp FROM transcripts WHERE task_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Role, &e.Content, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Delete drops every entry of a task.
func (s *TranscriptStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM transcripts WHERE task_id = ?`, taskID)
	return err
}

func (s *TranscriptStore) Close() error {
	return s.DB.Close()
}
