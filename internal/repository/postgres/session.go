package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/repository"
)

const uniqueViolation = "23505"

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
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

	query := `
		INSERT INTO onboarding_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.CurrentStage,
		s.Status,
		s.Version,
		docs.Extracted,
		docs.History,
		docs.Summaries,
		docs.Topics,
		s.StageTurnCount,
		s.StageProgress,
		s.OverallProgress,
		s.ArtifactStatus,
		s.LastActivity,
		s.ExpiresAt,
		s.CreatedAt,
		s.UpdatedAt,
		s.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, s.ID)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM onboarding_sessions WHERE id = $1`

	var s domain.Session
	var docs repository.Documents
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.CurrentStage,
		&s.Status,
		&s.Version,
		&docs.Extracted,
		&docs.History,
		&docs.Summaries,
		&docs.Topics,
		&s.StageTurnCount,
		&s.StageProgress,
		&s.OverallProgress,
		&s.ArtifactStatus,
		&s.LastActivity,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := repository.DecodeDocuments(&s, docs); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the whole record in one conditional UPDATE. The WHERE clause on
// version, status and artifact status is the compare-and-swap; zero affected rows means
// another writer got there first or the session is gone.
func (r *SessionRepository) Save(ctx context.Context, s *domain.Session, expect domain.Expectation) error {
	docs, err := repository.EncodeDocuments(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE onboarding_sessions
		SET current_stage = $1, status = $2, version = $3, extracted_data = $4,
			conversation_history = $5, stage_summaries = $6, stage_topics = $7,
			stage_turn_count = $8, stage_progress = $9, overall_progress = $10,
			artifact_status = $11, last_activity = $12, expires_at = $13,
			updated_at = $14, completed_at = $15
		WHERE id = $16 AND version = $17 AND status = $18 AND artifact_status = $19
	`
	tag, err := r.pool.Exec(ctx, query,
		s.CurrentStage,
		s.Status,
		s.Version,
		docs.Extracted,
		docs.History,
		docs.Summaries,
		docs.Topics,
		s.StageTurnCount,
		s.StageProgress,
		s.OverallProgress,
		s.ArtifactStatus,
		s.LastActivity,
		s.ExpiresAt,
		s.UpdatedAt,
		s.CompletedAt,
		s.ID,
		expect.Version,
		expect.Status,
		expect.ArtifactStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM onboarding_sessions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: session %s changed since version %d", domain.ErrVersionConflict, s.ID, expect.Version)
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
