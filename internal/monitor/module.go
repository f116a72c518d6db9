// Package monitor implements endpoint reachability monitoring for
// registered devices: ICMP and TCP probes run on a schedule against
// the endpoints of active devices, with results kept for operators.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module       = (*Module)(nil)
	_ module.HTTPProvider = (*Module)(nil)
)

var probesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_probes_total",
		Help: "Total number of endpoint probes, by check type and outcome.",
	},
	[]string{"check_type", "outcome"},
)

func init() {
	prometheus.MustRegister(probesTotal)
}

const (
	defaultCheckInterval   = 60 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	defaultMaxWorkers      = 8
	defaultResultRetention = 7 * 24 * time.Hour
	maintenanceInterval    = time.Hour
)

// TopicProbeFailed is published when a probe against an active device fails.
const TopicProbeFailed = "monitor.probe_failed"

// ProbeFailedEvent is the payload for TopicProbeFailed.
type ProbeFailedEvent struct {
	CheckID  string `json:"checkId"`
	DeviceID string `json:"deviceId"`
	Target   string `json:"target"`
	Error    string `json:"error"`
}

// Module implements the monitor gateway module.
type Module struct {
	devicesMod *devices.Module

	logger    *zap.Logger
	bus       module.EventBus
	store     *MonitorStore
	scheduler *Scheduler
	icmp      Checker
	tcp       Checker

	retention time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates a monitor module wired against the devices module.
func New(devicesMod *devices.Module) *Module {
	return &Module{devicesMod: devicesMod}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "monitor",
		Version:      "1.0.0",
		Description:  "Endpoint reachability monitoring for registered devices",
		Dependencies: []string{"devices"},
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	if err := deps.Store.Migrate(ctx, "monitor", migrations()); err != nil {
		return fmt.Errorf("monitor migrations: %w", err)
	}
	m.store = NewMonitorStore(deps.Store.DB())

	interval := defaultCheckInterval
	if deps.Config != nil && deps.Config.IsSet("check_interval") {
		interval = deps.Config.GetDuration("check_interval")
	}
	timeout := defaultProbeTimeout
	if deps.Config != nil && deps.Config.IsSet("probe_timeout") {
		timeout = deps.Config.GetDuration("probe_timeout")
	}
	workers := defaultMaxWorkers
	if deps.Config != nil && deps.Config.IsSet("max_workers") {
		workers = deps.Config.GetInt("max_workers")
	}
	m.retention = defaultResultRetention
	if deps.Config != nil && deps.Config.IsSet("result_retention") {
		m.retention = deps.Config.GetDuration("result_retention")
	}

	m.icmp = NewICMPChecker(timeout, 3)
	m.tcp = NewTCPChecker(timeout)
	m.scheduler = NewScheduler(m.store, m.execute, interval, workers, m.logger)

	m.logger.Info("monitor module initialized",
		zap.Duration("check_interval", interval),
		zap.Int("max_workers", workers))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.scheduler.Start(context.Background())
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.maintenanceLoop()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.stop == nil {
		return nil
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// maintenanceLoop enforces the result retention period.
func (m *Module) maintenanceLoop() {
	defer close(m.done)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := m.store.PruneResults(ctx, time.Now().UTC().Add(-m.retention)); err != nil {
				m.logger.Warn("result prune failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// execute probes one check. Checks whose device is no longer active
// are skipped without recording a result.
func (m *Module) execute(ctx context.Context, c Check) {
	registry := m.devicesMod.Registry()
	d, err := registry.Get(ctx, c.DeviceID)
	if err != nil || !d.IsActive(time.Now()) {
		return
	}

	var probe *ProbeResult
	switch c.CheckType {
	case CheckTCP:
		probe = m.tcp.Probe(ctx, c.Target)
	default:
		probe = m.icmp.Probe(ctx, c.Target)
	}

	outcome := "success"
	if !probe.Success {
		outcome = "failure"
	}
	probesTotal.WithLabelValues(string(c.CheckType), outcome).Inc()

	res := &Result{
		CheckID:      c.ID,
		DeviceID:     c.DeviceID,
		Success:      probe.Success,
		LatencyMs:    probe.LatencyMs,
		PacketLoss:   probe.PacketLoss,
		ErrorMessage: probe.ErrorMessage,
		CheckedAt:    probe.CheckedAt,
	}
	if err := m.store.InsertResult(ctx, res); err != nil {
		m.logger.Warn("failed to store probe result",
			zap.String("check_id", c.ID), zap.Error(err))
		return
	}

	if !probe.Success && m.bus != nil {
		m.bus.PublishAsync(ctx, module.Event{
			Topic:  TopicProbeFailed,
			Source: "monitor",
			Payload: ProbeFailedEvent{
				CheckID:  c.ID,
				DeviceID: c.DeviceID,
				Target:   c.Target,
				Error:    probe.ErrorMessage,
			},
		})
	}
}

// Routes implements module.HTTPProvider.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "POST", Path: "/checks", Handler: m.handleCreateCheck},
		{Method: "GET", Path: "/checks", Handler: m.handleListChecks},
		{Method: "DELETE", Path: "/checks/{id}", Handler: m.handleDeleteCheck},
		{Method: "POST", Path: "/checks/{id}/enable", Handler: m.handleEnableCheck},
		{Method: "POST", Path: "/checks/{id}/disable", Handler: m.handleDisableCheck},
		{Method: "GET", Path: "/results", Handler: m.handleLatestResults},
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
	}
}
