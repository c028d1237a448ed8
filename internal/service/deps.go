package service

import (
	"context"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// SessionCache is an optional read-through cache for the stream path
type SessionCache interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Set(ctx context.Context, s *domain.Session) error
	Invalidate(ctx context.Context, id string) error
}

// TriggerQueue carries sessions whose downstream analysis is due
type TriggerQueue interface {
	Enqueue(ctx context.Context, sessionID string) error
	Remove(ctx context.Context, sessionID string) error
}
