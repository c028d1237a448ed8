package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

const (
	DefaultMaxAttempts = 5
	DefaultMaxAge      = 24 * time.Hour
)

// Committer sends one commit to the server
type Committer interface {
	Commit(ctx context.Context, sessionID string, in domain.CommitInput) (*domain.CommitResult, error)
}

// RecoveredFunc is told about every pending exchange the server accepted
type RecoveredFunc func(p PendingCommit, result *domain.CommitResult)

// RecoveryReport summarizes one recovery pass
type RecoveryReport struct {
	Recovered int
	// Conflicted entries were stale against the server and have been removed
	// from the queue. Their drafts are returned so the user can resubmit them.
	Conflicted []PendingCommit
	// Retrying entries failed this pass and stay queued.
	Retrying int
	// Exhausted entries hit the attempt ceiling; their drafts are returned so
	// the caller can show them to the user.
	Exhausted []PendingCommit
	LastError error
}

// QueueOptions bound how long and how often an entry is replayed
type QueueOptions struct {
	MaxAttempts int
	MaxAge      time.Duration
}

// Queue is the client durability queue: exchanges that were streamed but not
// confirmed are saved here and replayed with their original message ids.
type Queue struct {
	store       Store
	committer   Committer
	maxAttempts int
	maxAge      time.Duration
	now         func() time.Time

	// mu serializes recovery passes so an entry is never replayed twice at once.
	mu sync.Mutex
}

// NewQueue creates a queue over store
func NewQueue(store Store, committer Committer, opts QueueOptions) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	return &Queue{
		store:       store,
		committer:   committer,
		maxAttempts: opts.MaxAttempts,
		maxAge:      opts.MaxAge,
		now:         time.Now,
	}
}

// SavePending records an exchange. Saving the same message id twice is a no-op.
func (q *Queue) SavePending(ctx context.Context, p PendingCommit) error {
	if p.SessionID == "" || p.MessageID == "" {
		return fmt.Errorf("%w: pending commit needs session and message ids", domain.ErrInvalidInput)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = q.now().UTC()
	}
	inserted, err := q.store.Put(ctx, p)
	if err != nil {
		return err
	}
	if inserted {
		log.Debug().Str("session_id", p.SessionID).Str("message_id", p.MessageID).Msg("Pending commit saved")
	}
	return nil
}

// Remove drops an entry once its commit was confirmed or resolved
func (q *Queue) Remove(ctx context.Context, messageID string) error {
	return q.store.Delete(ctx, messageID)
}

// HasPending reports whether sessionID has a live, replayable entry
func (q *Queue) HasPending(ctx context.Context, sessionID string) (bool, error) {
	entries, err := q.Pending(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, p := range entries {
		if p.Attempts < q.maxAttempts {
			return true, nil
		}
	}
	return false, nil
}

// Pending returns the live entries of sessionID in creation order.
// Entries past the age ceiling are deleted without being replayed.
func (q *Queue) Pending(ctx context.Context, sessionID string) ([]PendingCommit, error) {
	all, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := q.now().Add(-q.maxAge)
	var out []PendingCommit
	for _, p := range all {
		if p.CreatedAt.Before(cutoff) {
			log.Info().Str("session_id", p.SessionID).Str("message_id", p.MessageID).Msg("Dropping expired pending commit")
			if err := q.store.Delete(ctx, p.MessageID); err != nil {
				return nil, err
			}
			continue
		}
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

// RecoverPending replays the entries of sessionID in creation order.
// onRecovered is called once per accepted entry with the server's result.
//
// Entries queued while the server was unreachable were all captured against
// the same version, so after an entry is accepted the next one is replayed
// against the version that entry produced. A retryable failure ends the pass
// so later entries are never committed ahead of an earlier one.
func (q *Queue) RecoverPending(ctx context.Context, sessionID string, onRecovered RecoveredFunc) (RecoveryReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var report RecoveryReport
	entries, err := q.Pending(ctx, sessionID)
	if err != nil {
		return report, err
	}

	var base *int64
	for _, p := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if p.Attempts >= q.maxAttempts {
			report.Exhausted = append(report.Exhausted, p)
			if err := q.store.Delete(ctx, p.MessageID); err != nil {
				return report, err
			}
			continue
		}

		if base != nil && p.ExpectedVersion != nil && *p.ExpectedVersion != *base {
			v := *base
			if err := q.store.SetExpectedVersion(ctx, p.MessageID, v); err != nil {
				return report, err
			}
			p.ExpectedVersion = &v
		}

		result, err := q.committer.Commit(ctx, p.SessionID, domain.CommitInput{
			MessageID:        p.MessageID,
			UserMessage:      p.UserMessage,
			AssistantMessage: p.AssistantMessage,
			ExpectedVersion:  p.ExpectedVersion,
		})
		switch {
		case err == nil:
			if err := q.store.Delete(ctx, p.MessageID); err != nil {
				return report, err
			}
			report.Recovered++
			if result != nil {
				v := result.Version
				base = &v
			}
			if onRecovered != nil {
				onRecovered(p, result)
			}
		case errors.Is(err, domain.ErrVersionConflict):
			log.Info().Str("session_id", p.SessionID).Str("message_id", p.MessageID).Msg("Pending commit is stale, returning draft")
			if err := q.store.Delete(ctx, p.MessageID); err != nil {
				return report, err
			}
			report.Conflicted = append(report.Conflicted, p)
			base = nil
		default:
			report.Retrying++
			report.LastError = err
			if err := q.store.SetAttempts(ctx, p.MessageID, p.Attempts+1); err != nil {
				return report, err
			}
			return report, nil
		}
	}
	return report, nil
}
