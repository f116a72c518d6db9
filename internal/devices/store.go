package devices

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a device row does not exist.
var ErrNotFound = errors.New("device not found")

const deviceColumns = `device_id, device_name, device_type, organization_name, admin_email,
	public_key_hash, public_key_certificate, device_fingerprint, allowed_ip_ranges,
	status, permissions, encrypted_symmetric_key,
	registered_at, expires_at, last_verified_at, last_data_transmission_at,
	transmission_count, failed_transmission_count,
	approved_by, approved_at, suspension_reason, revocation_reason, revoked_at`

// DeviceStore provides database access for the devices module.
type DeviceStore struct {
	db *sql.DB
}

// NewDeviceStore creates a DeviceStore wrapping the given database connection.
func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// Insert persists a newly registered device.
func (s *DeviceStore) Insert(ctx context.Context, d *Device) error {
	perms, err := json.Marshal(d.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gateway_devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.DeviceName, d.DeviceType, d.OrganizationName, d.AdminEmail,
		d.PublicKeyHash, d.PublicKeyCertificate, d.DeviceFingerprint, d.AllowedIPRanges,
		d.Status, string(perms), d.EncryptedSymmetricKey,
		d.RegisteredAt, d.ExpiresAt, d.LastVerifiedAt, d.LastDataTransmissionAt,
		d.TransmissionCount, d.FailedTransmissionCount,
		d.ApprovedBy, d.ApprovedAt, d.SuspensionReason, d.RevocationReason, d.RevokedAt,
	)
	if err != nil {
		// The registry pre-checks both uniqueness rules, but two
		// concurrent registrations can race past them; the loser's
		// constraint violation maps back to the same sentinels.
		switch {
		case strings.Contains(err.Error(), "gateway_devices.device_id"):
			return ErrDuplicateID
		case strings.Contains(err.Error(), "gateway_devices.public_key_hash"):
			return ErrDuplicateHash
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

// Get returns a device by ID, or ErrNotFound.
func (s *DeviceStore) Get(ctx context.Context, deviceID string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM gateway_devices WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

// PublicKeyHashExists reports whether any device already uses the hash.
func (s *DeviceStore) PublicKeyHashExists(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gateway_devices WHERE public_key_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check public key hash: %w", err)
	}
	return n > 0, nil
}

// List returns all devices ordered by registration time.
func (s *DeviceStore) List(ctx context.Context) ([]*Device, error) {
	return s.query(ctx,
		`SELECT `+deviceColumns+` FROM gateway_devices ORDER BY registered_at`)
}

// ListByStatus returns devices in the given lifecycle state.
func (s *DeviceStore) ListByStatus(ctx context.Context, status DeviceStatus) ([]*Device, error) {
	return s.query(ctx,
		`SELECT `+deviceColumns+` FROM gateway_devices WHERE status = ? ORDER BY registered_at`, status)
}

// ListExpiringBefore returns devices whose expiry falls before the cutoff.
func (s *DeviceStore) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Device, error) {
	return s.query(ctx,
		`SELECT `+deviceColumns+` FROM gateway_devices WHERE expires_at < ? ORDER BY expires_at`, cutoff)
}

// SetApproved transitions a device to ACTIVE with its granted permissions.
func (s *DeviceStore) SetApproved(ctx context.Context, deviceID string, perms []Permission, approvedBy string, at time.Time) error {
	encoded, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	return s.exec(ctx, `
		UPDATE gateway_devices
		SET status = ?, permissions = ?, approved_by = ?, approved_at = ?
		WHERE device_id = ?`,
		StatusActive, string(encoded), approvedBy, at, deviceID)
}

// SetRevoked marks a device REVOKED with the recorded reason.
func (s *DeviceStore) SetRevoked(ctx context.Context, deviceID, reason string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE gateway_devices
		SET status = ?, revocation_reason = ?, revoked_at = ?
		WHERE device_id = ?`,
		StatusRevoked, reason, at, deviceID)
}

// SetSuspended marks a device SUSPENDED with the recorded reason.
func (s *DeviceStore) SetSuspended(ctx context.Context, deviceID, reason string) error {
	return s.exec(ctx, `
		UPDATE gateway_devices
		SET status = ?, suspension_reason = ?
		WHERE device_id = ?`,
		StatusSuspended, reason, deviceID)
}

// SetReinstated returns a SUSPENDED device to ACTIVE and clears the reason.
func (s *DeviceStore) SetReinstated(ctx context.Context, deviceID string) error {
	return s.exec(ctx, `
		UPDATE gateway_devices
		SET status = ?, suspension_reason = ''
		WHERE device_id = ?`,
		StatusActive, deviceID)
}

// SetRenewed updates the expiry and status after a renewal.
func (s *DeviceStore) SetRenewed(ctx context.Context, deviceID string, expiresAt time.Time, status DeviceStatus) error {
	return s.exec(ctx, `
		UPDATE gateway_devices
		SET expires_at = ?, status = ?
		WHERE device_id = ?`,
		expiresAt, status, deviceID)
}

// TouchVerified records a successful verification.
func (s *DeviceStore) TouchVerified(ctx context.Context, deviceID string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE gateway_devices SET last_verified_at = ? WHERE device_id = ?`,
		at, deviceID)
}

// RecordTransmission bumps the success or failure counter in a single
// statement so concurrent callers never lose an increment. On success it
// also stamps the last transmission time.
func (s *DeviceStore) RecordTransmission(ctx context.Context, deviceID string, success bool, at time.Time) error {
	return s.exec(ctx, `
		UPDATE gateway_devices SET
			transmission_count = transmission_count + CASE WHEN ? THEN 1 ELSE 0 END,
			failed_transmission_count = failed_transmission_count + CASE WHEN ? THEN 0 ELSE 1 END,
			last_data_transmission_at = CASE WHEN ? THEN ? ELSE last_data_transmission_at END
		WHERE device_id = ?`,
		success, success, success, at, deviceID)
}

// CountActive returns the number of ACTIVE, unexpired devices.
func (s *DeviceStore) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gateway_devices WHERE status = ? AND expires_at > ?`,
		StatusActive, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active devices: %w", err)
	}
	return n, nil
}

// TotalTransmissions returns the sum of successful transmissions across
// all devices.
func (s *DeviceStore) TotalTransmissions(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(transmission_count) FROM gateway_devices`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum transmissions: %w", err)
	}
	return n.Int64, nil
}

func (s *DeviceStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DeviceStore) query(ctx context.Context, query string, args ...any) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d     Device
		perms string
	)
	err := row.Scan(
		&d.DeviceID, &d.DeviceName, &d.DeviceType, &d.OrganizationName, &d.AdminEmail,
		&d.PublicKeyHash, &d.PublicKeyCertificate, &d.DeviceFingerprint, &d.AllowedIPRanges,
		&d.Status, &perms, &d.EncryptedSymmetricKey,
		&d.RegisteredAt, &d.ExpiresAt, &d.LastVerifiedAt, &d.LastDataTransmissionAt,
		&d.TransmissionCount, &d.FailedTransmissionCount,
		&d.ApprovedBy, &d.ApprovedAt, &d.SuspensionReason, &d.RevocationReason, &d.RevokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &d.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return &d, nil
}
