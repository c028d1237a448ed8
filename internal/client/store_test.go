package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "queue", "pending.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStores(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			later := pending("s1", "m2", queueEpoch.Add(time.Minute))
			later.ExpectedVersion = nil
			inserted, err := s.Put(ctx, later)
			require.NoError(t, err)
			assert.True(t, inserted)

			inserted, err = s.Put(ctx, pending("s2", "m1", queueEpoch))
			require.NoError(t, err)
			assert.True(t, inserted)

			inserted, err = s.Put(ctx, pending("s2", "m1", queueEpoch))
			require.NoError(t, err)
			assert.False(t, inserted)

			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "m1", entries[0].MessageID)
			require.NotNil(t, entries[0].ExpectedVersion)
			assert.Equal(t, int64(0), *entries[0].ExpectedVersion)
			assert.True(t, queueEpoch.Equal(entries[0].CreatedAt))
			assert.Nil(t, entries[1].ExpectedVersion)

			require.NoError(t, s.SetAttempts(ctx, "m2", 3))
			require.NoError(t, s.SetExpectedVersion(ctx, "m2", 7))
			require.NoError(t, s.Delete(ctx, "m1"))

			entries, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "m2", entries[0].MessageID)
			assert.Equal(t, 3, entries[0].Attempts)
			require.NotNil(t, entries[0].ExpectedVersion)
			assert.Equal(t, int64(7), *entries[0].ExpectedVersion)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pending.db")

	s, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	_, err = s.Put(ctx, pending("s1", "m1", queueEpoch))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reply m1", entries[0].AssistantMessage)
}
