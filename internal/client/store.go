package client

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PendingCommit is an exchange the server has not yet confirmed
type PendingCommit struct {
	SessionID        string
	MessageID        string
	UserMessage      string
	AssistantMessage string
	// ExpectedVersion is the session version the exchange was produced against.
	ExpectedVersion *int64
	CreatedAt       time.Time
	Attempts        int
}

// Store persists pending commits on the local device
type Store interface {
	// Put inserts p unless an entry with the same message id exists.
	Put(ctx context.Context, p PendingCommit) (inserted bool, err error)
	// List returns every entry in creation order.
	List(ctx context.Context) ([]PendingCommit, error)
	Delete(ctx context.Context, messageID string) error
	SetAttempts(ctx context.Context, messageID string, attempts int) error
	// SetExpectedVersion rebases an entry onto a version produced by an earlier entry.
	SetExpectedVersion(ctx context.Context, messageID string, version int64) error
	Close() error
}

// MemoryStore keeps pending commits in process memory
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]PendingCommit
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]PendingCommit)}
}

func (s *MemoryStore) Put(_ context.Context, p PendingCommit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[p.MessageID]; ok {
		return false, nil
	}
	s.entries[p.MessageID] = p
	return true, nil
}

func (s *MemoryStore) List(context.Context) ([]PendingCommit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingCommit, 0, len(s.entries))
	for _, p := range s.entries {
		out = append(out, p)
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, messageID)
	return nil
}

func (s *MemoryStore) SetAttempts(_ context.Context, messageID string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.entries[messageID]; ok {
		p.Attempts = attempts
		s.entries[messageID] = p
	}
	return nil
}

func (s *MemoryStore) SetExpectedVersion(_ context.Context, messageID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.entries[messageID]; ok {
		p.ExpectedVersion = &version
		s.entries[messageID] = p
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortByCreation(entries []PendingCommit) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].MessageID < entries[j].MessageID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
