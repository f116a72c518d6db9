package audit

import (
	"database/sql"

	"github.com/schoolgate/schoolgate/pkg/module"
)

func migrations() []module.Migration {
	return []module.Migration{
		{
			Version:     1,
			Description: "create gateway audit ledger",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS gateway_audit (
						id TEXT PRIMARY KEY,
						transmission_id TEXT NOT NULL,
						device_id TEXT NOT NULL DEFAULT '',
						status TEXT NOT NULL,
						data_type TEXT NOT NULL DEFAULT '',
						block_reason TEXT NOT NULL DEFAULT '',
						error_message TEXT NOT NULL DEFAULT '',
						field_count INTEGER NOT NULL DEFAULT 0,
						source_ip TEXT NOT NULL DEFAULT '',
						timestamp DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_gateway_audit_device ON gateway_audit(device_id)`,
					`CREATE INDEX IF NOT EXISTS idx_gateway_audit_status ON gateway_audit(status)`,
					`CREATE INDEX IF NOT EXISTS idx_gateway_audit_timestamp ON gateway_audit(timestamp)`,
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
