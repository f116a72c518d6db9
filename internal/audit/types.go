package audit

import (
	"fmt"
	"time"
)

// Status classifies the outcome of a transmission attempt.
type Status string

const (
	StatusSuccess             Status = "SUCCESS"
	StatusBlocked             Status = "BLOCKED"
	StatusFailed              Status = "FAILED"
	StatusUnregisteredAttempt Status = "UNREGISTERED_ATTEMPT"
)

// Record is one append-only ledger entry per transmission attempt.
// DataType, BlockReason, and ErrorMessage are mutually exclusive by
// status; SourceIP is recorded only for unregistered attempts. A record
// never carries payload content or key material, only counts and
// hashes.
type Record struct {
	ID             string    `json:"id"`
	TransmissionID string    `json:"transmissionId"`
	DeviceID       string    `json:"deviceId"`
	Status         Status    `json:"status"`
	DataType       string    `json:"dataType,omitempty"`
	BlockReason    string    `json:"blockReason,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	FieldCount     int       `json:"fieldCount"`
	SourceIP       string    `json:"sourceIp,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate enforces the per-status field exclusivity rules before a
// record reaches the ledger.
func (r *Record) Validate() error {
	if r.TransmissionID == "" {
		return fmt.Errorf("transmissionId is required")
	}
	switch r.Status {
	case StatusSuccess:
		if r.BlockReason != "" || r.ErrorMessage != "" {
			return fmt.Errorf("SUCCESS record must not carry a block reason or error message")
		}
	case StatusBlocked:
		if r.BlockReason == "" {
			return fmt.Errorf("BLOCKED record requires a block reason")
		}
		if r.ErrorMessage != "" {
			return fmt.Errorf("BLOCKED record must not carry an error message")
		}
	case StatusFailed:
		if r.ErrorMessage == "" {
			return fmt.Errorf("FAILED record requires an error message")
		}
		if r.BlockReason != "" {
			return fmt.Errorf("FAILED record must not carry a block reason")
		}
	case StatusUnregisteredAttempt:
		if r.SourceIP == "" {
			return fmt.Errorf("UNREGISTERED_ATTEMPT record requires the source IP")
		}
	default:
		return fmt.Errorf("unknown audit status %q", r.Status)
	}
	if r.Status != StatusUnregisteredAttempt && r.SourceIP != "" {
		return fmt.Errorf("sourceIp is recorded only for unregistered attempts")
	}
	return nil
}
