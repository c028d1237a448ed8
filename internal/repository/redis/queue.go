package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TriggerQueue carries session ids whose downstream analysis is due
type TriggerQueue struct {
	client *Client
	key    string
}

// NewTriggerQueue creates a queue stored in the Redis list key
func NewTriggerQueue(client *Client, key string) *TriggerQueue {
	return &TriggerQueue{client: client, key: key}
}

// Enqueue pushes a session id onto the queue
func (q *TriggerQueue) Enqueue(ctx context.Context, sessionID string) error {
	if err := q.client.rdb.LPush(ctx, q.key, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue trigger: %w", err)
	}
	return nil
}

// Remove deletes every queued occurrence of a session id
func (q *TriggerQueue) Remove(ctx context.Context, sessionID string) error {
	if err := q.client.rdb.LRem(ctx, q.key, 0, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to remove trigger: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest id. ok is false on timeout.
func (q *TriggerQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.client.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to dequeue trigger: %w", err)
	}
	// BRPOP answers [key, value]
	return res[1], true, nil
}

// Len returns the number of queued ids
func (q *TriggerQueue) Len(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, q.key).Result()
}
