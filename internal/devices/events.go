package devices

// Event topics published on the bus.
const (
	TopicRegistered = "devices.registered"
	TopicApproved   = "devices.approved"
	TopicRevoked    = "devices.revoked"
	TopicSuspended  = "devices.suspended"
)

// LifecycleEvent is the payload for device lifecycle topics.
type LifecycleEvent struct {
	DeviceID   string     `json:"deviceId"`
	DeviceType DeviceType `json:"deviceType"`
	Actor      string     `json:"actor,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}
