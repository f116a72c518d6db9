// Package transmit implements the outbound proxy: the single pipeline
// through which any data leaving the system to an external device must
// pass, and the gateway's transmission API.
package transmit

import (
	"context"
	"fmt"

	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/keys"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module       = (*Module)(nil)
	_ module.HTTPProvider = (*Module)(nil)
)

// Module implements the transmit gateway module. It is wired against
// the devices and audit modules by the composition root and reads their
// services after they have initialized.
type Module struct {
	devicesMod *devices.Module
	auditMod   *audit.Module
	engine     *keys.Engine
	sanitizer  Sanitizer

	logger *zap.Logger
	proxy  *Proxy
}

// New creates a transmit module. The sanitizer is the external
// redaction collaborator; pass Passthrough when redaction happens
// upstream.
func New(devicesMod *devices.Module, auditMod *audit.Module, engine *keys.Engine, sanitizer Sanitizer) *Module {
	return &Module{
		devicesMod: devicesMod,
		auditMod:   auditMod,
		engine:     engine,
		sanitizer:  sanitizer,
	}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "transmit",
		Version:      "1.0.0",
		Description:  "Outbound transmission pipeline and gateway API",
		Dependencies: []string{"devices", "audit"},
		Required:     true,
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger

	registry := m.devicesMod.Registry()
	ledger := m.auditMod.Ledger()
	if registry == nil || ledger == nil {
		return fmt.Errorf("transmit requires initialized devices and audit modules")
	}
	if m.sanitizer == nil {
		m.sanitizer = Passthrough{}
	}
	m.proxy = NewProxy(registry, ledger, m.engine, m.sanitizer, m.logger)
	m.logger.Info("transmit module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// Proxy exposes the outbound proxy to other modules. Valid only after Init.
func (m *Module) Proxy() *Proxy {
	return m.proxy
}

// Routes implements module.HTTPProvider.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "POST", Path: "/data", Handler: m.handleTransmitData},
		{Method: "POST", Path: "/notification", Handler: m.handleTransmitNotification},
		{Method: "POST", Path: "/aggregate", Handler: m.handleTransmitAggregate},
		{Method: "GET", Path: "/can-receive", Handler: m.handleCanReceive},
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
	}
}
