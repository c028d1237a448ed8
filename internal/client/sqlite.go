package client

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const pendingSchema = `CREATE TABLE IF NOT EXISTS pending_commits (
	message_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_message TEXT NOT NULL,
	assistant_message TEXT NOT NULL,
	expected_version INTEGER,
	created_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore keeps pending commits in a local SQLite file so they survive restarts
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the queue database at path
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, pendingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize queue schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, p PendingCommit) (bool, error) {
	var expected sql.NullInt64
	if p.ExpectedVersion != nil {
		expected = sql.NullInt64{Int64: *p.ExpectedVersion, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO pending_commits
		(message_id, session_id, user_message, assistant_message, expected_version, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MessageID, p.SessionID, p.UserMessage, p.AssistantMessage, expected, p.CreatedAt.UnixNano(), p.Attempts)
	if err != nil {
		return false, fmt.Errorf("failed to save pending commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]PendingCommit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, session_id, user_message, assistant_message,
		expected_version, created_at, attempts
		FROM pending_commits ORDER BY created_at, message_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending commits: %w", err)
	}
	defer rows.Close()

	var out []PendingCommit
	for rows.Next() {
		var (
			p        PendingCommit
			expected sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&p.MessageID, &p.SessionID, &p.UserMessage, &p.AssistantMessage,
			&expected, &created, &p.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan pending commit: %w", err)
		}
		if expected.Valid {
			v := expected.Int64
			p.ExpectedVersion = &v
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_commits WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("failed to delete pending commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetAttempts(ctx context.Context, messageID string, attempts int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE pending_commits SET attempts = ? WHERE message_id = ?`, attempts, messageID); err != nil {
		return fmt.Errorf("failed to update pending commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetExpectedVersion(ctx context.Context, messageID string, version int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE pending_commits SET expected_version = ? WHERE message_id = ?`, version, messageID); err != nil {
		return fmt.Errorf("failed to rebase pending commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
