package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

const (
	sessionCachePrefix     = "onboarding:session:"
	defaultSessionCacheTTL = 30 * time.Second
)

// SessionCache holds recently read sessions for the stream path.
// Entries may be stale; commit decisions always read the store.
type SessionCache struct {
	client *Client
	ttl    time.Duration
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = defaultSessionCacheTTL
	}
	return &SessionCache{client: client, ttl: ttl}
}

// Get retrieves a cached session. A miss returns (nil, nil).
func (c *SessionCache) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := c.client.rdb.Get(ctx, sessionCachePrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Set caches a session
func (c *SessionCache) Set(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.client.rdb.Set(ctx, sessionCachePrefix+s.ID, data, c.ttl).Err()
}

// Invalidate removes a cached session
func (c *SessionCache) Invalidate(ctx context.Context, id string) error {
	return c.client.rdb.Del(ctx, sessionCachePrefix+id).Err()
}
