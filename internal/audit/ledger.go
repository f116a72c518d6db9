package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// TopicRecorded is published on the bus for every appended record.
const TopicRecorded = "audit.recorded"

var auditRecordsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_audit_records_total",
		Help: "Total number of audit records appended, by status.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(auditRecordsTotal)
}

// Ledger is the append-only audit sink. Every transmission attempt
// produces exactly one record, including attempts by devices the
// registry cannot identify.
type Ledger struct {
	store  *AuditStore
	bus    module.EventBus
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(store *AuditStore, bus module.EventBus, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Append validates and persists one record. The record ID and timestamp
// are filled in when absent. Records are never updated or individually
// deleted after this point.
func (l *Ledger) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = l.now().UTC()
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid audit record: %w", err)
	}
	if err := l.store.Insert(ctx, r); err != nil {
		return err
	}

	auditRecordsTotal.WithLabelValues(string(r.Status)).Inc()
	if l.bus != nil {
		l.bus.PublishAsync(ctx, module.Event{
			Topic:     TopicRecorded,
			Source:    "audit",
			Timestamp: r.Timestamp,
			Payload:   *r,
		})
	}
	return nil
}

// ListRecent returns the newest records.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	return l.store.ListRecent(ctx, clampLimit(limit))
}

// ListByDevice returns the newest records for one device.
func (l *Ledger) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	return l.store.ListByDevice(ctx, deviceID, clampLimit(limit))
}

// ListByStatus returns the newest records with the given status.
func (l *Ledger) ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error) {
	return l.store.ListByStatus(ctx, status, clampLimit(limit))
}

// CountByStatus returns totals per outcome for the status endpoint.
func (l *Ledger) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	return l.store.CountByStatus(ctx)
}

// Prune removes records older than the retention period and reports how
// many were dropped.
func (l *Ledger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().UTC().Add(-retention)
	n, err := l.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("pruned audit records",
			zap.Int64("removed", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
