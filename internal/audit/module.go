// Package audit implements the gateway's append-only transmission
// ledger: one record per attempt, never updated, never carrying payload
// content or key material.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module       = (*Module)(nil)
	_ module.HTTPProvider = (*Module)(nil)
)

const (
	defaultRetention     = 90 * 24 * time.Hour
	defaultPruneInterval = 24 * time.Hour
)

// Module implements the audit gateway module.
type Module struct {
	logger *zap.Logger
	ledger *Ledger

	retention     time.Duration
	pruneInterval time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates an audit module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:        "audit",
		Version:     "1.0.0",
		Description: "Append-only transmission audit ledger",
		Required:    true,
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger
	if err := deps.Store.Migrate(ctx, "audit", migrations()); err != nil {
		return fmt.Errorf("audit migrations: %w", err)
	}
	m.ledger = NewLedger(NewAuditStore(deps.Store.DB()), deps.Bus, m.logger)

	m.retention = defaultRetention
	if deps.Config != nil && deps.Config.IsSet("retention_period") {
		m.retention = deps.Config.GetDuration("retention_period")
	}
	m.pruneInterval = defaultPruneInterval
	if deps.Config != nil && deps.Config.IsSet("prune_interval") {
		m.pruneInterval = deps.Config.GetDuration("prune_interval")
	}

	m.logger.Info("audit module initialized",
		zap.Duration("retention", m.retention))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.pruneLoop()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
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

// pruneLoop enforces the retention period in the background.
func (m *Module) pruneLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := m.ledger.Prune(ctx, m.retention); err != nil {
				m.logger.Warn("audit prune failed", zap.Error(err))
			}
			cancel()
		case <-m.stop:
			return
		}
	}
}

// Ledger exposes the audit ledger to other modules. Valid only after Init.
func (m *Module) Ledger() *Ledger {
	return m.ledger
}

// Routes implements module.HTTPProvider.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "GET", Path: "", Handler: m.handleListRecent},
		{Method: "GET", Path: "/device/{id}", Handler: m.handleListByDevice},
		{Method: "GET", Path: "/status/{status}", Handler: m.handleListByStatus},
	}
}
