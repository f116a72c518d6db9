package auth

import (
	"database/sql"

	"github.com/schoolgate/schoolgate/pkg/module"
)

func migrations() []module.Migration {
	return []module.Migration{
		{
			Version:     1,
			Description: "create operator account tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS auth_users (
						id TEXT PRIMARY KEY,
						username TEXT NOT NULL UNIQUE,
						email TEXT NOT NULL UNIQUE,
						password_hash TEXT,
						role TEXT NOT NULL DEFAULT 'viewer',
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						last_login DATETIME,
						disabled INTEGER NOT NULL DEFAULT 0,
						failed_login_attempts INTEGER NOT NULL DEFAULT 0,
						locked_until DATETIME
					)`,
					`CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
						id TEXT PRIMARY KEY,
						user_id TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
						token_hash TEXT NOT NULL UNIQUE,
						expires_at DATETIME NOT NULL,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						revoked INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_user ON auth_refresh_tokens(user_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
