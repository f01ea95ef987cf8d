// Package store persists messages dropped by session truncation to SQLite so
// external consolidation and housekeeping can still reach them. The JSONL
// session files remain the source of truth for live conversations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"aide/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL,
	session_key TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT,
	payload TEXT NOT NULL,
	archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_archived_session ON archived_messages(session_key);
CREATE INDEX IF NOT EXISTS idx_archived_batch ON archived_messages(batch_id);
`

// ArchiveStore is the SQLite-backed truncation archive. It implements
// session.Archiver.
type ArchiveStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Batch summarizes one archival run for a session.
type Batch struct {
	ID         string
	SessionKey string
	Messages   int
	ArchivedAt string
}

// NewArchiveStore opens (creating if needed) the archive database at path.
// Use ":memory:" for tests.
func NewArchiveStore(path string, log *zap.Logger) (*ArchiveStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return &ArchiveStore{db: db, log: log}, nil
}

// ArchiveMessages stores one truncation batch and returns its batch id.
func (s *ArchiveStore) ArchiveMessages(sessionKey string, msgs []session.Message) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin archive transaction: %w", err)
	}

	batchID := uuid.NewString()
	stmt, err := tx.Prepare(
		`INSERT INTO archived_messages (batch_id, session_key, role, content, timestamp, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			tx.Rollback()
			return "", fmt.Errorf("failed to encode archived message: %w", err)
		}
		if _, err := stmt.Exec(batchID, sessionKey, msg.Role, msg.Content, msg.Timestamp, string(payload)); err != nil {
			tx.Rollback()
			return "", fmt.Errorf("failed to insert archived message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit archive batch: %w", err)
	}

	s.log.Debug("archived message batch",
		zap.String("session", sessionKey),
		zap.String("batch", batchID),
		zap.Int("count", len(msgs)))
	return batchID, nil
}

// ArchivedCount returns how many messages are archived for a session key.
func (s *ArchiveStore) ArchivedCount(sessionKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM archived_messages WHERE session_key = ?`, sessionKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived messages: %w", err)
	}
	return count, nil
}

// RecentBatches lists the latest archival batches for a session, newest first.
func (s *ArchiveStore) RecentBatches(sessionKey string, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT batch_id, COUNT(*), MAX(archived_at)
		 FROM archived_messages
		 WHERE session_key = ?
		 GROUP BY batch_id
		 ORDER BY MAX(archived_at) DESC, batch_id
		 LIMIT ?`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b := Batch{SessionKey: sessionKey}
		if err := rows.Scan(&b.ID, &b.Messages, &b.ArchivedAt); err != nil {
			continue
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// BatchMessages returns the messages of one archived batch in insertion order.
func (s *ArchiveStore) BatchMessages(batchID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT payload FROM archived_messages WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived batch: %w", err)
	}
	defer rows.Close()

	var msgs []session.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var msg session.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			s.log.Warn("corrupt archived message payload", zap.String("batch", batchID))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Close closes the underlying database.
func (s *ArchiveStore) Close() error {
	return s.db.Close()
}
