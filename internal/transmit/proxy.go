package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/keys"
	"go.uber.org/zap"
)

var transmissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_transmissions_total",
		Help: "Total number of transmission attempts, by outcome and data type.",
	},
	[]string{"outcome", "data_type"},
)

func init() {
	prometheus.MustRegister(transmissionsTotal)
}

// KeyExchangeAlgorithm is the out-of-band bootstrap algorithm reported
// by the status endpoint.
const KeyExchangeAlgorithm = "RSA-2048-OAEP"

// Request identifies the target device and the payload for one
// transmission attempt. PublicKeyHash is the credential the caller
// presents on the device's behalf; SourceIP is checked against the
// device's allow list.
type Request struct {
	DeviceID      string         `json:"deviceId"`
	PublicKeyHash string         `json:"publicKeyHash"`
	SourceIP      string         `json:"sourceIp,omitempty"`
	Data          map[string]any `json:"data"`
}

// Proxy is the outbound chokepoint: every payload leaving the system to
// an external device passes through its pipeline of verification,
// permission check, sanitization, encryption, and audit.
type Proxy struct {
	registry  *devices.Registry
	ledger    *audit.Ledger
	engine    *keys.Engine
	sanitizer Sanitizer
	logger    *zap.Logger
	now       func() time.Time
}

// NewProxy creates the outbound proxy over its collaborators.
func NewProxy(registry *devices.Registry, ledger *audit.Ledger, engine *keys.Engine, sanitizer Sanitizer, logger *zap.Logger) *Proxy {
	return &Proxy{
		registry:  registry,
		ledger:    ledger,
		engine:    engine,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// TransmitToDevice sends a typed data payload to a device. An unknown
// data type maps to no permission and is blocked.
func (p *Proxy) TransmitToDevice(ctx context.Context, req Request, dataType DataType) Result {
	return p.transmit(ctx, req, pipeline{
		auditType: string(dataType),
		permissionCheck: func(d *devices.Device) (string, bool) {
			return CodeInsufficientPermissions, permittedFor(d, dataType)
		},
		sanitize: func(ctx context.Context, d *devices.Device) (map[string]any, error) {
			return p.sanitizer.Sanitize(ctx, req.Data, d, dataType)
		},
	})
}

// TransmitNotification sends a notification payload to a device.
func (p *Proxy) TransmitNotification(ctx context.Context, req Request, notifType NotificationType) Result {
	required, known := notificationPermissions[notifType]
	return p.transmit(ctx, req, pipeline{
		auditType: string(notifType),
		permissionCheck: func(d *devices.Device) (string, bool) {
			return CodeNoPermission, known && d.HasPermission(required)
		},
		sanitize: func(ctx context.Context, d *devices.Device) (map[string]any, error) {
			return p.sanitizer.SanitizeNotification(ctx, req.Data, d, notifType)
		},
	})
}

// TransmitAggregateData sends aggregate statistics to a device. An
// empty sanitizer result is treated as no permission: the gateway
// cannot distinguish "nothing permitted" from "nothing present" and
// fails closed.
func (p *Proxy) TransmitAggregateData(ctx context.Context, req Request) Result {
	return p.transmit(ctx, req, pipeline{
		auditType: string(DataAggregateReport),
		permissionCheck: func(d *devices.Device) (string, bool) {
			return CodeNoPermission, d.HasPermission(devices.PermAggregateStatistics)
		},
		sanitize: func(ctx context.Context, d *devices.Device) (map[string]any, error) {
			return p.sanitizer.SanitizeAggregate(ctx, req.Data, d)
		},
		emptyBlocks: true,
	})
}

// pipeline parameterizes the shared transmission flow: the three entry
// points differ only in permission lookup and sanitizer dispatch.
type pipeline struct {
	auditType       string
	permissionCheck func(*devices.Device) (blockCode string, ok bool)
	sanitize        func(context.Context, *devices.Device) (map[string]any, error)
	emptyBlocks     bool
}

func (p *Proxy) transmit(ctx context.Context, req Request, pl pipeline) Result {
	txID := uuid.NewString()

	vr, err := p.registry.Verify(ctx, req.DeviceID, req.PublicKeyHash, req.SourceIP)
	if err != nil {
		p.logger.Error("device verification failed",
			zap.String("transmission_id", txID),
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
		return p.technical(ctx, txID, req.DeviceID, pl.auditType, false)
	}
	if !vr.OK() {
		return p.rejected(ctx, txID, req, pl.auditType, vr)
	}
	device := vr.Device

	if code, ok := pl.permissionCheck(device); !ok {
		p.auditBlocked(ctx, txID, device.DeviceID, code)
		transmissionsTotal.WithLabelValues(string(OutcomeBlocked), pl.auditType).Inc()
		return blocked(txID, code, fmt.Sprintf("device lacks permission for %s", pl.auditType))
	}

	sanitized, err := pl.sanitize(ctx, device)
	if err != nil {
		p.logger.Error("sanitization failed",
			zap.String("transmission_id", txID),
			zap.String("device_id", device.DeviceID),
			zap.Error(err))
		return p.technical(ctx, txID, device.DeviceID, pl.auditType, true)
	}
	if pl.emptyBlocks && len(sanitized) == 0 {
		p.auditBlocked(ctx, txID, device.DeviceID, CodeNoPermission)
		transmissionsTotal.WithLabelValues(string(OutcomeBlocked), pl.auditType).Inc()
		return blocked(txID, CodeNoPermission, "no fields permitted for this device")
	}

	stamped := make(map[string]any, len(sanitized)+2)
	for k, v := range sanitized {
		stamped[k] = v
	}
	stamped["_transmissionId"] = txID
	stamped["_transmittedAt"] = p.now().UTC().Format(time.RFC3339)

	// Canonical form: encoding/json emits map keys in sorted order.
	serialized, err := json.Marshal(stamped)
	if err != nil {
		p.logger.Error("payload serialization failed",
			zap.String("transmission_id", txID),
			zap.String("device_id", device.DeviceID),
			zap.Error(err))
		return p.technical(ctx, txID, device.DeviceID, pl.auditType, true)
	}

	key, err := p.registry.DeviceKey(ctx, device.DeviceID)
	if err != nil {
		p.logger.Error("device key retrieval failed",
			zap.String("transmission_id", txID),
			zap.String("device_id", device.DeviceID),
			zap.Error(err))
		return p.technical(ctx, txID, device.DeviceID, pl.auditType, true)
	}

	payload, err := p.engine.EncryptForDevice(serialized, key)
	keys.ZeroBytes(key)
	if err != nil {
		p.logger.Error("payload encryption failed",
			zap.String("transmission_id", txID),
			zap.String("device_id", device.DeviceID),
			zap.Error(err))
		return p.technical(ctx, txID, device.DeviceID, pl.auditType, true)
	}

	if err := p.registry.RecordTransmission(ctx, device.DeviceID, true); err != nil {
		p.logger.Warn("failed to record transmission counter",
			zap.String("device_id", device.DeviceID),
			zap.Error(err))
	}
	p.auditAppend(ctx, &audit.Record{
		TransmissionID: txID,
		DeviceID:       device.DeviceID,
		Status:         audit.StatusSuccess,
		DataType:       pl.auditType,
		FieldCount:     len(sanitized),
	})
	transmissionsTotal.WithLabelValues(string(OutcomeSuccess), pl.auditType).Inc()
	return success(txID, payload)
}

// rejected handles every verification failure: unregistered attempts
// are audited with the source IP, everything else as BLOCKED.
func (p *Proxy) rejected(ctx context.Context, txID string, req Request, auditType string, vr devices.VerificationResult) Result {
	if vr.Outcome == devices.Unregistered {
		// The ledger requires a source IP on unregistered attempts, but
		// SourceIP is optional on the request. A placeholder keeps the
		// attempt on the ledger rather than failing validation.
		sourceIP := req.SourceIP
		if sourceIP == "" {
			sourceIP = "unknown"
		}
		p.auditAppend(ctx, &audit.Record{
			TransmissionID: txID,
			DeviceID:       req.DeviceID,
			Status:         audit.StatusUnregisteredAttempt,
			BlockReason:    vr.Code,
			SourceIP:       sourceIP,
		})
	} else {
		p.auditBlocked(ctx, txID, req.DeviceID, vr.Code)
	}
	transmissionsTotal.WithLabelValues(string(OutcomeBlocked), auditType).Inc()

	msg := "device verification failed"
	switch vr.Outcome {
	case devices.Unregistered:
		msg = fmt.Sprintf("device %s is not registered", req.DeviceID)
	case devices.Inactive:
		msg = fmt.Sprintf("device %s is not active (status %s)", req.DeviceID, vr.DeviceStatus)
	case devices.InvalidCredentials:
		msg = "presented credentials do not match the registered device"
	case devices.IPNotAllowed:
		msg = "source address is not in the device allow list"
	}
	return blocked(txID, vr.Code, msg)
}

// technical converts any serialization, crypto, or persistence fault
// into an opaque TRANSMISSION_ERROR. The cause stays in the logs; it is
// never surfaced to the caller. When the device was identified, the
// failure counts against it.
func (p *Proxy) technical(ctx context.Context, txID, deviceID, auditType string, deviceKnown bool) Result {
	if deviceKnown {
		if err := p.registry.RecordTransmission(ctx, deviceID, false); err != nil {
			p.logger.Warn("failed to record failure counter",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
	}
	p.auditAppend(ctx, &audit.Record{
		TransmissionID: txID,
		DeviceID:       deviceID,
		Status:         audit.StatusFailed,
		ErrorMessage:   "transmission failed",
	})
	transmissionsTotal.WithLabelValues(string(OutcomeError), auditType).Inc()
	return failure(txID, "transmission failed")
}

func (p *Proxy) auditBlocked(ctx context.Context, txID, deviceID, code string) {
	p.auditAppend(ctx, &audit.Record{
		TransmissionID: txID,
		DeviceID:       deviceID,
		Status:         audit.StatusBlocked,
		BlockReason:    code,
	})
}

func (p *Proxy) auditAppend(ctx context.Context, rec *audit.Record) {
	if err := p.ledger.Append(ctx, rec); err != nil {
		p.logger.Error("audit append failed",
			zap.String("transmission_id", rec.TransmissionID),
			zap.Error(err))
	}
}

// CanDeviceReceive is the pure capability predicate: it reuses the
// permission table without attempting a transmission. Unknown devices
// simply cannot receive.
func (p *Proxy) CanDeviceReceive(ctx context.Context, deviceID string, dataType DataType) (bool, error) {
	d, err := p.registry.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.IsActive(p.now()) && permittedFor(d, dataType), nil
}

// StatusInfo is the gateway status summary.
type StatusInfo struct {
	Status               string `json:"status"`
	ActiveDevices        int    `json:"activeDevices"`
	TotalTransmissions   int64  `json:"totalTransmissions"`
	EncryptionAlgorithm  string `json:"encryptionAlgorithm"`
	KeyExchangeAlgorithm string `json:"keyExchangeAlgorithm"`
}

// Status reports gateway-level aggregates for operators.
func (p *Proxy) Status(ctx context.Context) (StatusInfo, error) {
	active, err := p.registry.CountActive(ctx)
	if err != nil {
		return StatusInfo{}, err
	}
	total, err := p.registry.TotalTransmissions(ctx)
	if err != nil {
		return StatusInfo{}, err
	}
	return StatusInfo{
		Status:               "operational",
		ActiveDevices:        active,
		TotalTransmissions:   total,
		EncryptionAlgorithm:  keys.Algorithm,
		KeyExchangeAlgorithm: KeyExchangeAlgorithm,
	}, nil
}
