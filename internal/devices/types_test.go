package devices

import (
	"testing"
	"time"
)

func TestDeviceIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		status    DeviceStatus
		expiresAt time.Time
		want      bool
	}{
		{"active unexpired", StatusActive, future, true},
		{"active expired", StatusActive, past, false},
		{"active expiring exactly now", StatusActive, now, false},
		{"pending unexpired", StatusPendingApproval, future, false},
		{"suspended unexpired", StatusSuspended, future, false},
		{"revoked unexpired", StatusRevoked, future, false},
		{"expired status", StatusExpired, future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Device{Status: tt.status, ExpiresAt: tt.expiresAt}
			if got := d.IsActive(now); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	lapsed := &Device{Status: StatusActive, ExpiresAt: now.Add(-time.Hour)}
	if got := lapsed.EffectiveStatus(now); got != StatusExpired {
		t.Errorf("EffectiveStatus(lapsed ACTIVE) = %s, want %s", got, StatusExpired)
	}

	suspended := &Device{Status: StatusSuspended, ExpiresAt: now.Add(-time.Hour)}
	if got := suspended.EffectiveStatus(now); got != StatusSuspended {
		t.Errorf("EffectiveStatus(SUSPENDED) = %s, want %s", got, StatusSuspended)
	}
}

func TestHasPermission(t *testing.T) {
	d := &Device{Permissions: []Permission{PermStudentGrades, PermAggregateStatistics}}

	if !d.HasPermission(PermStudentGrades) {
		t.Error("expected STUDENT_GRADES to be held")
	}
	if d.HasPermission(PermStudentContactInfo) {
		t.Error("STUDENT_CONTACT_INFO should not be held")
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := func() RegisterRequest {
		return RegisterRequest{
			DeviceID:             "dev-1",
			DeviceName:           "District Sync",
			DeviceType:           TypeDistrictServer,
			OrganizationName:     "Springfield USD",
			AdminEmail:           "it@springfield.example",
			PublicKeyCertificate: "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----",
		}
	}

	if err := (&RegisterRequest{}).Validate(); err == nil {
		t.Error("empty request should fail validation")
	}

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"missing deviceId", func(r *RegisterRequest) { r.DeviceID = " " }},
		{"missing deviceName", func(r *RegisterRequest) { r.DeviceName = "" }},
		{"unknown deviceType", func(r *RegisterRequest) { r.DeviceType = "TOASTER" }},
		{"missing organization", func(r *RegisterRequest) { r.OrganizationName = "" }},
		{"bad email", func(r *RegisterRequest) { r.AdminEmail = "not-an-email" }},
		{"missing certificate", func(r *RegisterRequest) { r.PublicKeyCertificate = "" }},
		{"unknown permission", func(r *RegisterRequest) {
			r.RequestedPermissions = []Permission{"LAUNCH_MISSILES"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			if err := req.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	req := valid()
	req.RequestedPermissions = []Permission{PermStudentBasicInfo}
	if err := req.Validate(); err != nil {
		t.Errorf("valid request failed: %v", err)
	}
}

func TestSummarize_OmitsSensitiveFields(t *testing.T) {
	d := &Device{
		DeviceID:              "dev-1",
		DeviceName:            "Portal",
		DeviceType:            TypeParentPortal,
		OrganizationName:      "Springfield USD",
		Status:                StatusActive,
		PublicKeyCertificate:  "CERT",
		EncryptedSymmetricKey: []byte{1, 2, 3},
		TransmissionCount:     7,
	}
	s := d.Summarize()
	if s.DeviceID != "dev-1" || s.TransmissionCount != 7 {
		t.Errorf("summary fields wrong: %+v", s)
	}
}
