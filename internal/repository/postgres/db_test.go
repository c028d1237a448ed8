package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/config"
)

func TestNewPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:             "db.internal",
		Port:             5432,
		User:             "onboarding",
		Password:         "secret",
		Database:         "onboarding",
		SSLMode:          "disable",
		MaxConns:         12,
		MinConns:         2,
		MaxConnIdle:      time.Minute,
		StatementTimeout: 3 * time.Second,
	}

	poolConfig, err := newPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(12), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, time.Minute, poolConfig.MaxConnIdleTime)
	assert.Equal(t, "db.internal", poolConfig.ConnConfig.Host)
	assert.Equal(t, "onboarding-sync", poolConfig.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "3000", poolConfig.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestNewPoolConfig_KeepsDriverDefaults(t *testing.T) {
	poolConfig, err := newPoolConfig(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", Database: "d", SSLMode: "disable",
		MinConns: 50,
	})
	require.NoError(t, err)

	assert.Positive(t, poolConfig.MaxConns)
	assert.LessOrEqual(t, poolConfig.MinConns, poolConfig.MaxConns)
	_, ok := poolConfig.ConnConfig.RuntimeParams["statement_timeout"]
	assert.False(t, ok)
}
