package transmit

import (
	"context"

	"github.com/schoolgate/schoolgate/internal/devices"
)

// Sanitizer redacts a payload down to what the device's permissions
// allow before it is encrypted. The redaction policy itself lives
// outside the gateway; this is the contract the gateway consumes. An
// implementation must never emit a field the device may not receive.
type Sanitizer interface {
	// Sanitize redacts a typed data payload for the device.
	Sanitize(ctx context.Context, data map[string]any, device *devices.Device, dataType DataType) (map[string]any, error)

	// SanitizeNotification redacts a notification payload.
	SanitizeNotification(ctx context.Context, notification map[string]any, device *devices.Device, notifType NotificationType) (map[string]any, error)

	// SanitizeAggregate reduces a payload to permitted aggregate
	// statistics. An empty result means nothing was permitted.
	SanitizeAggregate(ctx context.Context, data map[string]any, device *devices.Device) (map[string]any, error)
}

// Passthrough is a Sanitizer that returns payloads unchanged. Used in
// tests and in deployments where redaction happens upstream.
type Passthrough struct{}

var _ Sanitizer = Passthrough{}

func (Passthrough) Sanitize(_ context.Context, data map[string]any, _ *devices.Device, _ DataType) (map[string]any, error) {
	return data, nil
}

func (Passthrough) SanitizeNotification(_ context.Context, notification map[string]any, _ *devices.Device, _ NotificationType) (map[string]any, error) {
	return notification, nil
}

func (Passthrough) SanitizeAggregate(_ context.Context, data map[string]any, _ *devices.Device) (map[string]any, error) {
	return data, nil
}
