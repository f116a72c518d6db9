package devices

import (
	"database/sql"

	"github.com/schoolgate/schoolgate/pkg/module"
)

func migrations() []module.Migration {
	return []module.Migration{
		{
			Version:     1,
			Description: "create device registry table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS gateway_devices (
						device_id TEXT PRIMARY KEY,
						device_name TEXT NOT NULL,
						device_type TEXT NOT NULL,
						organization_name TEXT NOT NULL,
						admin_email TEXT NOT NULL,
						public_key_hash TEXT NOT NULL UNIQUE,
						public_key_certificate TEXT NOT NULL,
						device_fingerprint TEXT DEFAULT '',
						allowed_ip_ranges TEXT DEFAULT '',
						status TEXT NOT NULL,
						permissions TEXT NOT NULL DEFAULT '[]',
						encrypted_symmetric_key BLOB NOT NULL,
						registered_at DATETIME NOT NULL,
						expires_at DATETIME NOT NULL,
						last_verified_at DATETIME,
						last_data_transmission_at DATETIME,
						transmission_count INTEGER NOT NULL DEFAULT 0,
						failed_transmission_count INTEGER NOT NULL DEFAULT 0,
						approved_by TEXT DEFAULT '',
						approved_at DATETIME,
						suspension_reason TEXT DEFAULT '',
						revocation_reason TEXT DEFAULT '',
						revoked_at DATETIME
					)`,
					`CREATE INDEX IF NOT EXISTS idx_gateway_devices_status ON gateway_devices(status)`,
					`CREATE INDEX IF NOT EXISTS idx_gateway_devices_expires ON gateway_devices(expires_at)`,
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
