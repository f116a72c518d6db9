package devices

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/schoolgate/schoolgate/internal/keys"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Registry service errors. These surface at the operator boundary as
// 400-level responses and are never audited.
var (
	ErrDuplicateID   = errors.New("deviceId already registered")
	ErrDuplicateHash = errors.New("certificate already registered to another device")
	ErrNotPending    = errors.New("device is not pending approval")
	ErrNotSuspended  = errors.New("device is not suspended")
	ErrRevoked       = errors.New("device is revoked")
	ErrInactive      = errors.New("device is not active")
)

// Verification error codes on the wire.
const (
	CodeNotRegistered      = "DEVICE_NOT_REGISTERED"
	CodeInactive           = "DEVICE_INACTIVE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeIPNotAllowed       = "IP_NOT_ALLOWED"
)

// VerifyOutcome tags a VerificationResult.
type VerifyOutcome string

const (
	Verified           VerifyOutcome = "VERIFIED"
	Unregistered       VerifyOutcome = "UNREGISTERED"
	Inactive           VerifyOutcome = "INACTIVE"
	InvalidCredentials VerifyOutcome = "INVALID_CREDENTIALS_PRESENTED"
	IPNotAllowed       VerifyOutcome = "IP_NOT_ALLOWED_SOURCE"
)

// VerificationResult is the outcome of a device verification. Device is
// set only when Outcome is Verified; Code carries the fixed wire error
// code otherwise.
type VerificationResult struct {
	Outcome      VerifyOutcome
	Device       *Device
	DeviceStatus DeviceStatus // effective status, set when Inactive
	Code         string
}

// OK reports whether verification succeeded.
func (r VerificationResult) OK() bool {
	return r.Outcome == Verified
}

// Registry owns the device trust lifecycle: registration, approval,
// revocation, verification, and symmetric key issuance. All key
// material at rest is wrapped by the injected encryption engine.
type Registry struct {
	store  *DeviceStore
	engine *keys.Engine
	bus    module.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry creates a device registry backed by the given store and
// encryption engine.
func NewRegistry(store *DeviceStore, engine *keys.Engine, bus module.Publisher, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		engine: engine,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Register validates the request, issues a fresh wrapped symmetric key,
// and persists the device as PENDING_APPROVAL with a one-year expiry.
func (r *Registry) Register(ctx context.Context, req *RegisterRequest) (*Device, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.store.Get(ctx, req.DeviceID); err == nil {
		return nil, ErrDuplicateID
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash := hashCertificate([]byte(req.PublicKeyCertificate))
	exists, err := r.store.PublicKeyHashExists(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateHash
	}

	keyB64, err := keys.GenerateDeviceKey()
	if err != nil {
		return nil, fmt.Errorf("issue device key: %w", err)
	}
	rawKey, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("issue device key: %w", err)
	}
	defer keys.ZeroBytes(rawKey)

	wrapped, err := r.engine.EncryptWithMasterKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("wrap device key: %w", err)
	}

	now := r.now().UTC()
	d := &Device{
		DeviceID:              req.DeviceID,
		DeviceName:            req.DeviceName,
		DeviceType:            req.DeviceType,
		OrganizationName:      req.OrganizationName,
		AdminEmail:            req.AdminEmail,
		PublicKeyHash:         hash,
		PublicKeyCertificate:  req.PublicKeyCertificate,
		DeviceFingerprint:     req.DeviceFingerprint,
		AllowedIPRanges:       req.AllowedIPRanges,
		Status:                StatusPendingApproval,
		Permissions:           req.RequestedPermissions,
		EncryptedSymmetricKey: wrapped,
		RegisteredAt:          now,
		ExpiresAt:             now.AddDate(1, 0, 0),
	}
	if d.Permissions == nil {
		d.Permissions = []Permission{}
	}

	if err := r.store.Insert(ctx, d); err != nil {
		return nil, err
	}

	r.logger.Info("device registered",
		zap.String("device_id", d.DeviceID),
		zap.String("device_type", string(d.DeviceType)),
		zap.String("organization", d.OrganizationName))
	r.publish(ctx, TopicRegistered, d, "", "")
	return d, nil
}

// Approve transitions a PENDING_APPROVAL device to ACTIVE with the
// granted permission set, which may be narrower than what was requested.
func (r *Registry) Approve(ctx context.Context, deviceID, approvedBy string, granted []Permission) (*Device, error) {
	if err := ValidatePermissions(granted); err != nil {
		return nil, err
	}
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPendingApproval {
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, d.Status)
	}
	if granted == nil {
		granted = []Permission{}
	}

	now := r.now().UTC()
	if err := r.store.SetApproved(ctx, deviceID, granted, approvedBy, now); err != nil {
		return nil, err
	}

	d.Status = StatusActive
	d.Permissions = granted
	d.ApprovedBy = approvedBy
	d.ApprovedAt = &now

	r.logger.Info("device approved",
		zap.String("device_id", deviceID),
		zap.String("approved_by", approvedBy),
		zap.Int("permissions", len(granted)))
	r.publish(ctx, TopicApproved, d, approvedBy, "")
	return d, nil
}

// Revoke transitions a device to REVOKED. Terminal: a revoked device
// can never be reinstated or renewed.
func (r *Registry) Revoke(ctx context.Context, deviceID, reason, revokedBy string) error {
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	if err := r.store.SetRevoked(ctx, deviceID, reason, now); err != nil {
		return err
	}
	r.logger.Warn("device revoked",
		zap.String("device_id", deviceID),
		zap.String("revoked_by", revokedBy),
		zap.String("reason", reason))
	r.publish(ctx, TopicRevoked, d, revokedBy, reason)
	return nil
}

// Suspend transitions a device to SUSPENDED. Reversible via Reinstate.
func (r *Registry) Suspend(ctx context.Context, deviceID, reason string) error {
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.Status == StatusRevoked {
		return ErrRevoked
	}
	if err := r.store.SetSuspended(ctx, deviceID, reason); err != nil {
		return err
	}
	r.logger.Warn("device suspended",
		zap.String("device_id", deviceID),
		zap.String("reason", reason))
	r.publish(ctx, TopicSuspended, d, "", reason)
	return nil
}

// Reinstate returns a SUSPENDED device to ACTIVE.
func (r *Registry) Reinstate(ctx context.Context, deviceID string) error {
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.Status != StatusSuspended {
		return fmt.Errorf("%w: status is %s", ErrNotSuspended, d.Status)
	}
	if err := r.store.SetReinstated(ctx, deviceID); err != nil {
		return err
	}
	r.logger.Info("device reinstated", zap.String("device_id", deviceID))
	return nil
}

// Renew extends a device's expiry by the given number of years, counted
// from the later of now and the current expiry. A device marked EXPIRED
// is restored to ACTIVE.
func (r *Registry) Renew(ctx context.Context, deviceID string, years int) (*Device, error) {
	if years < 1 {
		return nil, fmt.Errorf("renewal years must be positive, got %d", years)
	}
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusRevoked {
		return nil, ErrRevoked
	}

	now := r.now().UTC()
	base := d.ExpiresAt
	if base.Before(now) {
		base = now
	}
	d.ExpiresAt = base.AddDate(years, 0, 0)
	if d.Status == StatusExpired {
		d.Status = StatusActive
	}

	if err := r.store.SetRenewed(ctx, deviceID, d.ExpiresAt, d.Status); err != nil {
		return nil, err
	}
	r.logger.Info("device renewed",
		zap.String("device_id", deviceID),
		zap.Time("expires_at", d.ExpiresAt))
	return d, nil
}

// Verify authenticates a transmission request against the registry.
// Checks run in fixed order: existence, active state, credential hash
// (constant-time), source IP allow list. Verification never mutates
// device status; a time-lapsed ACTIVE device fails as EXPIRED without
// the row changing.
func (r *Registry) Verify(ctx context.Context, deviceID, claimedHash, sourceIP string) (VerificationResult, error) {
	d, err := r.store.Get(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		return VerificationResult{Outcome: Unregistered, Code: CodeNotRegistered}, nil
	}
	if err != nil {
		return VerificationResult{}, err
	}

	now := r.now()
	if !d.IsActive(now) {
		return VerificationResult{
			Outcome:      Inactive,
			DeviceStatus: d.EffectiveStatus(now),
			Code:         CodeInactive,
		}, nil
	}

	if subtle.ConstantTimeCompare([]byte(claimedHash), []byte(d.PublicKeyHash)) != 1 {
		return VerificationResult{Outcome: InvalidCredentials, Code: CodeInvalidCredentials}, nil
	}

	if d.AllowedIPRanges != "" && !ipAllowed(sourceIP, d.AllowedIPRanges) {
		return VerificationResult{Outcome: IPNotAllowed, Code: CodeIPNotAllowed}, nil
	}

	if err := r.store.TouchVerified(ctx, deviceID, now.UTC()); err != nil {
		return VerificationResult{}, err
	}
	t := now.UTC()
	d.LastVerifiedAt = &t
	return VerificationResult{Outcome: Verified, Device: d}, nil
}

// RecordTransmission counts a transmission outcome against the device.
func (r *Registry) RecordTransmission(ctx context.Context, deviceID string, success bool) error {
	return r.store.RecordTransmission(ctx, deviceID, success, r.now().UTC())
}

// DeviceKey unwraps and returns the device's symmetric key. Fails for
// any device that is not currently active. Callers must zero the key
// when finished.
func (r *Registry) DeviceKey(ctx context.Context, deviceID string) ([]byte, error) {
	d, err := r.store.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive(r.now()) {
		return nil, fmt.Errorf("%w: %s", ErrInactive, deviceID)
	}
	key, err := r.engine.DecryptWithMasterKey(d.EncryptedSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap device key: %w", err)
	}
	return key, nil
}

// Get returns a device by ID.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Device, error) {
	return r.store.Get(ctx, deviceID)
}

// List returns all registered devices.
func (r *Registry) List(ctx context.Context) ([]*Device, error) {
	return r.store.List(ctx)
}

// ListPending returns devices awaiting approval.
func (r *Registry) ListPending(ctx context.Context) ([]*Device, error) {
	return r.store.ListByStatus(ctx, StatusPendingApproval)
}

// Summaries returns operator-facing projections of all devices. The
// projection never carries certificates or key material.
func (r *Registry) Summaries(ctx context.Context) ([]Summary, error) {
	devs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Summarize())
	}
	return out, nil
}

// CountActive returns the number of currently active devices.
func (r *Registry) CountActive(ctx context.Context) (int, error) {
	return r.store.CountActive(ctx, r.now())
}

// TotalTransmissions returns the successful transmission total across
// all devices.
func (r *Registry) TotalTransmissions(ctx context.Context) (int64, error) {
	return r.store.TotalTransmissions(ctx)
}

// hashCertificate computes the hex SHA-256 of certificate bytes. This is
// the credential a device presents on every transmission request.
func hashCertificate(cert []byte) string {
	sum := sha256.Sum256(cert)
	return hex.EncodeToString(sum[:])
}

func (r *Registry) publish(ctx context.Context, topic string, d *Device, actor, reason string) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, module.Event{
		Topic:     topic,
		Source:    "devices",
		Timestamp: r.now().UTC(),
		Payload: LifecycleEvent{
			DeviceID:   d.DeviceID,
			DeviceType: d.DeviceType,
			Actor:      actor,
			Reason:     reason,
		},
	})
}
