package devices

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType classifies the external system behind a registration.
type DeviceType string

// Supported device types.
const (
	TypeDistrictServer    DeviceType = "DISTRICT_SERVER"
	TypeParentPortal      DeviceType = "PARENT_PORTAL"
	TypeEmailRelay        DeviceType = "EMAIL_RELAY"
	TypeSMSGateway        DeviceType = "SMS_GATEWAY"
	TypeBackupServer      DeviceType = "BACKUP_SERVER"
	TypeAnalyticsPlatform DeviceType = "ANALYTICS_PLATFORM"
	TypeLMSIntegration    DeviceType = "LMS_INTEGRATION"
	TypeThirdPartyAPI     DeviceType = "THIRD_PARTY_API"
	TypeAuditSystem       DeviceType = "AUDIT_SYSTEM"
)

var validTypes = map[DeviceType]bool{
	TypeDistrictServer:    true,
	TypeParentPortal:      true,
	TypeEmailRelay:        true,
	TypeSMSGateway:        true,
	TypeBackupServer:      true,
	TypeAnalyticsPlatform: true,
	TypeLMSIntegration:    true,
	TypeThirdPartyAPI:     true,
	TypeAuditSystem:       true,
}

// DeviceStatus is the trust lifecycle state of a device.
type DeviceStatus string

const (
	StatusPendingApproval DeviceStatus = "PENDING_APPROVAL"
	StatusActive          DeviceStatus = "ACTIVE"
	StatusSuspended       DeviceStatus = "SUSPENDED"
	StatusRevoked         DeviceStatus = "REVOKED"
	StatusExpired         DeviceStatus = "EXPIRED"
)

// Permission is a flat outbound data capability granted to a device.
type Permission string

const (
	PermStudentBasicInfo    Permission = "STUDENT_BASIC_INFO"
	PermStudentContactInfo  Permission = "STUDENT_CONTACT_INFO"
	PermStudentAttendance   Permission = "STUDENT_ATTENDANCE"
	PermStudentGrades       Permission = "STUDENT_GRADES"
	PermSendAttendance      Permission = "SEND_ATTENDANCE_ALERTS"
	PermSendGradeUpdates    Permission = "SEND_GRADE_UPDATES"
	PermSendEmergency       Permission = "SEND_EMERGENCY_ALERTS"
	PermSendGeneral         Permission = "SEND_GENERAL_NOTIFICATIONS"
	PermAggregateStatistics Permission = "AGGREGATE_STATISTICS"
	PermComplianceReports   Permission = "COMPLIANCE_REPORTS"
	PermSyncSchedules       Permission = "SYNC_SCHEDULES"
	PermAuditLogs           Permission = "AUDIT_LOGS"
)

var validPermissions = map[Permission]bool{
	PermStudentBasicInfo:    true,
	PermStudentContactInfo:  true,
	PermStudentAttendance:   true,
	PermStudentGrades:       true,
	PermSendAttendance:      true,
	PermSendGradeUpdates:    true,
	PermSendEmergency:       true,
	PermSendGeneral:         true,
	PermAggregateStatistics: true,
	PermComplianceReports:   true,
	PermSyncSchedules:       true,
	PermAuditLogs:           true,
}

// Device is the identity and trust record of a registered external system.
// EncryptedSymmetricKey holds the device's AES-256 key wrapped under the
// master key; the raw key never appears on this struct.
type Device struct {
	DeviceID             string       `json:"deviceId"`
	DeviceName           string       `json:"deviceName"`
	DeviceType           DeviceType   `json:"deviceType"`
	OrganizationName     string       `json:"organizationName"`
	AdminEmail           string       `json:"adminEmail"`
	PublicKeyHash        string       `json:"publicKeyHash"`
	PublicKeyCertificate string       `json:"-"`
	DeviceFingerprint    string       `json:"deviceFingerprint,omitempty"`
	AllowedIPRanges      string       `json:"allowedIpRanges,omitempty"`
	Status               DeviceStatus `json:"status"`
	Permissions          []Permission `json:"permissions"`
	EncryptedSymmetricKey []byte      `json:"-"`

	RegisteredAt           time.Time  `json:"registeredAt"`
	ExpiresAt              time.Time  `json:"expiresAt"`
	LastVerifiedAt         *time.Time `json:"lastVerifiedAt,omitempty"`
	LastDataTransmissionAt *time.Time `json:"lastDataTransmissionAt,omitempty"`

	TransmissionCount       int64 `json:"transmissionCount"`
	FailedTransmissionCount int64 `json:"failedTransmissionCount"`

	ApprovedBy       string     `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	SuspensionReason string     `json:"suspensionReason,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
}

// IsActive reports whether the device may receive data at the given
// instant. Derived, never stored: status must be ACTIVE and the expiry
// must not have passed.
func (d *Device) IsActive(now time.Time) bool {
	return d.Status == StatusActive && now.Before(d.ExpiresAt)
}

// HasPermission reports whether the device holds the given capability.
func (d *Device) HasPermission(p Permission) bool {
	for _, have := range d.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// EffectiveStatus is the status as seen by verification: a time-lapsed
// ACTIVE device reads as EXPIRED without the row being mutated.
func (d *Device) EffectiveStatus(now time.Time) DeviceStatus {
	if d.Status == StatusActive && !now.Before(d.ExpiresAt) {
		return StatusExpired
	}
	return d.Status
}

// Summary is the read-only projection exposed to operators. It carries
// no certificate or key material.
type Summary struct {
	DeviceID               string       `json:"deviceId"`
	DeviceName             string       `json:"deviceName"`
	DeviceType             DeviceType   `json:"deviceType"`
	OrganizationName       string       `json:"organizationName"`
	Status                 DeviceStatus `json:"status"`
	Permissions            []Permission `json:"permissions"`
	ExpiresAt              time.Time    `json:"expiresAt"`
	LastDataTransmissionAt *time.Time   `json:"lastDataTransmissionAt,omitempty"`
	TransmissionCount      int64        `json:"transmissionCount"`
}

// Summarize strips a device down to its operator-facing projection.
func (d *Device) Summarize() Summary {
	return Summary{
		DeviceID:               d.DeviceID,
		DeviceName:             d.DeviceName,
		DeviceType:             d.DeviceType,
		OrganizationName:       d.OrganizationName,
		Status:                 d.Status,
		Permissions:            d.Permissions,
		ExpiresAt:              d.ExpiresAt,
		LastDataTransmissionAt: d.LastDataTransmissionAt,
		TransmissionCount:      d.TransmissionCount,
	}
}

// RegisterRequest is the operator-supplied registration input.
type RegisterRequest struct {
	DeviceID             string       `json:"deviceId"`
	DeviceName           string       `json:"deviceName"`
	DeviceType           DeviceType   `json:"deviceType"`
	OrganizationName     string       `json:"organizationName"`
	AdminEmail           string       `json:"adminEmail"`
	PublicKeyCertificate string       `json:"publicKeyCertificate"`
	DeviceFingerprint    string       `json:"deviceFingerprint,omitempty"`
	AllowedIPRanges      string       `json:"allowedIpRanges,omitempty"`
	RequestedPermissions []Permission `json:"requestedPermissions"`
}

// Validate checks required fields and enum membership. These errors are
// operator-facing and carry no secrets.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("deviceId is required")
	}
	if strings.TrimSpace(r.DeviceName) == "" {
		return fmt.Errorf("deviceName is required")
	}
	if !validTypes[r.DeviceType] {
		return fmt.Errorf("unknown deviceType %q", r.DeviceType)
	}
	if strings.TrimSpace(r.OrganizationName) == "" {
		return fmt.Errorf("organizationName is required")
	}
	if !strings.Contains(r.AdminEmail, "@") {
		return fmt.Errorf("adminEmail %q is not a valid address", r.AdminEmail)
	}
	if strings.TrimSpace(r.PublicKeyCertificate) == "" {
		return fmt.Errorf("publicKeyCertificate is required")
	}
	for _, p := range r.RequestedPermissions {
		if !validPermissions[p] {
			return fmt.Errorf("unknown permission %q", p)
		}
	}
	return nil
}

// ValidatePermissions checks a granted permission set at approval time.
func ValidatePermissions(perms []Permission) error {
	for _, p := range perms {
		if !validPermissions[p] {
			return fmt.Errorf("unknown permission %q", p)
		}
	}
	return nil
}
