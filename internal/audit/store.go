package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const recordColumns = `id, transmission_id, device_id, status, data_type,
	block_reason, error_message, field_count, source_ip, timestamp`

// AuditStore provides database access for the audit ledger. The table
// is append-only: there is deliberately no update method for records.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an AuditStore wrapping the given database connection.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Insert appends a record to the ledger.
func (s *AuditStore) Insert(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_audit (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TransmissionID, r.DeviceID, r.Status, r.DataType,
		r.BlockReason, r.ErrorMessage, r.FieldCount, r.SourceIP, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns the most recent records, newest first.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM gateway_audit
		ORDER BY timestamp DESC LIMIT ?`, limit)
}

// ListByDevice returns the most recent records for one device.
func (s *AuditStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM gateway_audit
		WHERE device_id = ? ORDER BY timestamp DESC LIMIT ?`, deviceID, limit)
}

// ListByStatus returns the most recent records with the given status.
func (s *AuditStore) ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM gateway_audit
		WHERE status = ? ORDER BY timestamp DESC LIMIT ?`, status, limit)
}

// CountByStatus returns record counts grouped by status.
func (s *AuditStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM gateway_audit GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count audit records: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int64)
	for rows.Next() {
		var (
			st Status
			n  int64
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		out[st] = n
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records past the retention horizon. Pruning
// is retention policy, not record mutation.
func (s *AuditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM gateway_audit WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return res.RowsAffected()
}

func (s *AuditStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TransmissionID, &r.DeviceID, &r.Status,
			&r.DataType, &r.BlockReason, &r.ErrorMessage, &r.FieldCount,
			&r.SourceIP, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
