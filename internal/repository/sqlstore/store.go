package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/repository"
)

// SessionRepository implements domain.SessionRepository over database/sql
type SessionRepository struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) a SQLite database file
func OpenSQLite(path string) (*SessionRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open(SQLite.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; the conditional UPDATE still decides who wins.
	db.SetMaxOpenConns(1)

	return New(context.Background(), db, SQLite)
}

// OpenMySQL connects to MySQL with the given DSN
func OpenMySQL(ctx context.Context, dsn string) (*SessionRepository, error) {
	db, err := sql.Open(MySQL.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return New(ctx, db, MySQL)
}

// New wraps an open database and ensures the schema exists
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*SessionRepository, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	return &SessionRepository{db: db, dialect: dialect}, nil
}

// Close closes the underlying database
func (r *SessionRepository) Close() error {
	return r.db.Close()
}

const sessionColumns = `id, user_id, current_stage, status, version, extracted_data,
	conversation_history, stage_summaries, stage_topics, stage_turn_count,
	stage_progress, overall_progress, artifact_status, last_activity,
	expires_at, created_at, updated_at, completed_at`

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	docs, err := repository.EncodeDocuments(s)
	if err != nil {
		return err
	}

	query := `INSERT INTO onboarding_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.CurrentStage,
		string(s.Status),
		s.Version,
		string(docs.Extracted),
		string(docs.History),
		string(docs.Summaries),
		string(docs.Topics),
		s.StageTurnCount,
		s.StageProgress,
		s.OverallProgress,
		string(s.ArtifactStatus),
		s.LastActivity.UnixNano(),
		s.ExpiresAt.UnixNano(),
		s.CreatedAt.UnixNano(),
		s.UpdatedAt.UnixNano(),
		nullableTime(s.CompletedAt),
	)
	if err != nil {
		if r.dialect.IsDuplicate(err) {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, s.ID)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM onboarding_sessions WHERE id = ?`

	var (
		s                                            domain.Session
		status, artifact                             string
		extracted, history, summaries, topics        string
		lastActivity, expiresAt, createdAt, updateAt int64
		completedAt                                  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.CurrentStage,
		&status,
		&s.Version,
		&extracted,
		&history,
		&summaries,
		&topics,
		&s.StageTurnCount,
		&s.StageProgress,
		&s.OverallProgress,
		&artifact,
		&lastActivity,
		&expiresAt,
		&createdAt,
		&updateAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.Status = domain.SessionStatus(status)
	s.ArtifactStatus = domain.ArtifactStatus(artifact)
	s.LastActivity = time.Unix(0, lastActivity).UTC()
	s.ExpiresAt = time.Unix(0, expiresAt).UTC()
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.UpdatedAt = time.Unix(0, updateAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		s.CompletedAt = &t
	}

	err = repository.DecodeDocuments(&s, repository.Documents{
		Extracted: []byte(extracted),
		History:   []byte(history),
		Summaries: []byte(summaries),
		Topics:    []byte(topics),
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Save(ctx context.Context, s *domain.Session, expect domain.Expectation) error {
	docs, err := repository.EncodeDocuments(s)
	if err != nil {
		return err
	}

	query := `UPDATE onboarding_sessions
		SET current_stage = ?, status = ?, version = ?, extracted_data = ?,
			conversation_history = ?, stage_summaries = ?, stage_topics = ?,
			stage_turn_count = ?, stage_progress = ?, overall_progress = ?,
			artifact_status = ?, last_activity = ?, expires_at = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ? AND status = ? AND artifact_status = ?`
	result, err := r.db.ExecContext(ctx, query,
		s.CurrentStage,
		string(s.Status),
		s.Version,
		string(docs.Extracted),
		string(docs.History),
		string(docs.Summaries),
		string(docs.Topics),
		s.StageTurnCount,
		s.StageProgress,
		s.OverallProgress,
		string(s.ArtifactStatus),
		s.LastActivity.UnixNano(),
		s.ExpiresAt.UnixNano(),
		s.UpdatedAt.UnixNano(),
		nullableTime(s.CompletedAt),
		s.ID,
		expect.Version,
		string(expect.Status),
		string(expect.ArtifactStatus),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM onboarding_sessions WHERE id = ?`, s.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: session %s changed since version %d", domain.ErrVersionConflict, s.ID, expect.Version)
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
