// Package devices implements the device registry: the trust lifecycle
// for external systems that receive data through the gateway, their
// credential and source-IP verification, and wrapped symmetric key
// issuance.
package devices

import (
	"context"
	"fmt"

	"github.com/schoolgate/schoolgate/internal/keys"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module        = (*Module)(nil)
	_ module.HTTPProvider  = (*Module)(nil)
	_ module.HealthChecker = (*Module)(nil)
)

// Module implements the devices gateway module.
type Module struct {
	engine   *keys.Engine
	logger   *zap.Logger
	store    *DeviceStore
	registry *Registry
}

// New creates a devices module bound to the given encryption engine.
func New(engine *keys.Engine) *Module {
	return &Module{engine: engine}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:        "devices",
		Version:     "1.0.0",
		Description: "External device trust lifecycle and key issuance",
		Required:    true,
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger
	if err := deps.Store.Migrate(ctx, "devices", migrations()); err != nil {
		return fmt.Errorf("devices migrations: %w", err)
	}
	m.store = NewDeviceStore(deps.Store.DB())
	m.registry = NewRegistry(m.store, m.engine, deps.Bus, m.logger)
	m.logger.Info("devices module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// Registry exposes the device registry service to other modules. Valid
// only after Init.
func (m *Module) Registry() *Registry {
	return m.registry
}

// Routes implements module.HTTPProvider.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "POST", Path: "", Handler: m.handleRegister},
		{Method: "GET", Path: "", Handler: m.handleList},
		{Method: "GET", Path: "/pending", Handler: m.handleListPending},
		{Method: "GET", Path: "/{id}", Handler: m.handleGet},
		{Method: "POST", Path: "/{id}/approve", Handler: m.handleApprove},
		{Method: "POST", Path: "/{id}/revoke", Handler: m.handleRevoke},
		{Method: "POST", Path: "/{id}/suspend", Handler: m.handleSuspend},
		{Method: "POST", Path: "/{id}/reinstate", Handler: m.handleReinstate},
		{Method: "POST", Path: "/{id}/renew", Handler: m.handleRenew},
	}
}

// Health implements module.HealthChecker.
func (m *Module) Health(ctx context.Context) module.HealthStatus {
	if m.registry == nil {
		return module.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	if _, err := m.registry.CountActive(ctx); err != nil {
		return module.HealthStatus{Status: "degraded", Message: "store unreachable"}
	}
	return module.HealthStatus{Status: "healthy"}
}
