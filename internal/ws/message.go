package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageAuditRecorded   MessageType = "audit.recorded"
	MessageDeviceLifecycle MessageType = "device.lifecycle"
	MessageProbeFailed     MessageType = "probe.failed"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// DeviceLifecycleData is the payload for device.lifecycle messages. The
// topic distinguishes registered, approved, suspended, and revoked
// transitions.
type DeviceLifecycleData struct {
	Topic      string `json:"topic"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Actor      string `json:"actor,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
