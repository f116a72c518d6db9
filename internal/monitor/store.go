package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a check does not exist.
var ErrNotFound = errors.New("check not found")

// Check is a registered endpoint reachability check for a device.
type Check struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	CheckType CheckType `json:"checkType"`
	Target    string    `json:"target"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Result is a stored probe outcome.
type Result struct {
	ID           int64     `json:"id"`
	CheckID      string    `json:"checkId"`
	DeviceID     string    `json:"deviceId"`
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latencyMs"`
	PacketLoss   float64   `json:"packetLoss"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// MonitorStore provides database access for endpoint checks and results.
type MonitorStore struct {
	db *sql.DB
}

// NewMonitorStore creates a MonitorStore over an already-migrated database.
func NewMonitorStore(db *sql.DB) *MonitorStore {
	return &MonitorStore{db: db}
}

// InsertCheck inserts a new endpoint check.
func (s *MonitorStore) InsertCheck(ctx context.Context, c *Check) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_checks (id, device_id, check_type, target, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeviceID, string(c.CheckType), c.Target, c.Enabled, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// GetCheck returns a check by ID.
func (s *MonitorStore) GetCheck(ctx context.Context, id string) (*Check, error) {
	c, err := scanCheck(s.db.QueryRowContext(ctx, `
		SELECT id, device_id, check_type, target, enabled, created_at, updated_at
		FROM monitor_checks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListChecks returns all checks ordered by creation time.
func (s *MonitorStore) ListChecks(ctx context.Context) ([]Check, error) {
	return s.queryChecks(ctx, `
		SELECT id, device_id, check_type, target, enabled, created_at, updated_at
		FROM monitor_checks ORDER BY created_at`)
}

// ListEnabledChecks returns all enabled checks.
func (s *MonitorStore) ListEnabledChecks(ctx context.Context) ([]Check, error) {
	return s.queryChecks(ctx, `
		SELECT id, device_id, check_type, target, enabled, created_at, updated_at
		FROM monitor_checks WHERE enabled = 1 ORDER BY created_at`)
}

func (s *MonitorStore) queryChecks(ctx context.Context, query string) ([]Check, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, *c)
	}
	return checks, rows.Err()
}

// SetEnabled toggles a check.
func (s *MonitorStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitor_checks SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCheck removes a check and, via cascade, its results.
func (s *MonitorStore) DeleteCheck(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_checks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete check: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertResult stores a probe outcome.
func (s *MonitorStore) InsertResult(ctx context.Context, r *Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_results (check_id, device_id, success, latency_ms, packet_loss, error_message, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.CheckID, r.DeviceID, r.Success, r.LatencyMs, r.PacketLoss, r.ErrorMessage, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// LatestResults returns the most recent result for each check.
func (s *MonitorStore) LatestResults(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.check_id, r.device_id, r.success, r.latency_ms, r.packet_loss, r.error_message, r.checked_at
		FROM monitor_results r
		INNER JOIN (
			SELECT check_id, MAX(checked_at) AS latest FROM monitor_results GROUP BY check_id
		) m ON r.check_id = m.check_id AND r.checked_at = m.latest
		ORDER BY r.check_id`)
	if err != nil {
		return nil, fmt.Errorf("latest results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.CheckID, &r.DeviceID, &r.Success,
			&r.LatencyMs, &r.PacketLoss, &r.ErrorMessage, &r.CheckedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PruneResults removes results older than the cutoff.
func (s *MonitorStore) PruneResults(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM monitor_results WHERE checked_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheck(row rowScanner) (*Check, error) {
	var c Check
	var checkType string
	if err := row.Scan(&c.ID, &c.DeviceID, &checkType, &c.Target,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CheckType = CheckType(checkType)
	return &c, nil
}
