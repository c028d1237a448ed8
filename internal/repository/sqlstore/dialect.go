package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the differences between the supported SQL engines
type Dialect struct {
	Name        string
	DriverName  string
	Schema      []string
	IsDuplicate func(error) bool
}

// MySQL stores the session documents in LONGTEXT JSON columns
var MySQL = Dialect{
	Name:       "mysql",
	DriverName: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS onboarding_sessions (
			id VARCHAR(128) NOT NULL PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			current_stage INT NOT NULL,
			status VARCHAR(16) NOT NULL,
			version BIGINT NOT NULL,
			extracted_data LONGTEXT NOT NULL,
			conversation_history LONGTEXT NOT NULL,
			stage_summaries LONGTEXT NOT NULL,
			stage_topics LONGTEXT NOT NULL,
			stage_turn_count INT NOT NULL,
			stage_progress INT NOT NULL,
			overall_progress INT NOT NULL,
			artifact_status VARCHAR(16) NOT NULL,
			last_activity BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			completed_at BIGINT NULL,
			INDEX idx_onboarding_sessions_user (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	IsDuplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
}

// SQLite is used for single-node deployments and tests
var SQLite = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS onboarding_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			current_stage INTEGER NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			extracted_data TEXT NOT NULL,
			conversation_history TEXT NOT NULL,
			stage_summaries TEXT NOT NULL,
			stage_topics TEXT NOT NULL,
			stage_turn_count INTEGER NOT NULL,
			stage_progress INTEGER NOT NULL,
			overall_progress INTEGER NOT NULL,
			artifact_status TEXT NOT NULL,
			last_activity INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_onboarding_sessions_user ON onboarding_sessions(user_id)`,
	},
	IsDuplicate: func(err error) bool {
		var sqErr *sqlite.Error
		if !errors.As(err, &sqErr) {
			return false
		}
		code := sqErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	},
}
