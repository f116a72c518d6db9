package monitor

import (
	"database/sql"

	"github.com/schoolgate/schoolgate/pkg/module"
)

func migrations() []module.Migration {
	return []module.Migration{
		{
			Version:     1,
			Description: "create endpoint check tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS monitor_checks (
						id TEXT PRIMARY KEY,
						device_id TEXT NOT NULL,
						check_type TEXT NOT NULL,
						target TEXT NOT NULL,
						enabled INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME NOT NULL,
						updated_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_monitor_checks_device ON monitor_checks(device_id)`,
					`CREATE TABLE IF NOT EXISTS monitor_results (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						check_id TEXT NOT NULL REFERENCES monitor_checks(id) ON DELETE CASCADE,
						device_id TEXT NOT NULL,
						success INTEGER NOT NULL,
						latency_ms REAL NOT NULL DEFAULT 0,
						packet_loss REAL NOT NULL DEFAULT 0,
						error_message TEXT DEFAULT '',
						checked_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_monitor_results_check ON monitor_results(check_id, checked_at)`,
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
