package transmit

import (
	"context"
	"testing"

	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/store"
	"github.com/schoolgate/schoolgate/pkg/module"
	"github.com/schoolgate/schoolgate/pkg/module/moduletest"
	"go.uber.org/zap"
)

// initializedDeps builds a transmit module whose devices and audit
// collaborators are already initialized, mirroring the registry's
// dependency ordering.
func initializedModule(t *testing.T) func() module.Module {
	return func() module.Module {
		st, err := store.New(":memory:")
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		logger := zap.NewNop()
		deps := module.Dependencies{
			Config: config.New(nil),
			Logger: logger,
			Store:  st,
			Bus:    event.NewBus(logger),
		}

		engine := testEngine(t)
		devMod := devices.New(engine)
		if err := devMod.Init(context.Background(), deps); err != nil {
			t.Fatalf("devices init: %v", err)
		}
		auditMod := audit.New()
		if err := auditMod.Init(context.Background(), deps); err != nil {
			t.Fatalf("audit init: %v", err)
		}
		return New(devMod, auditMod, engine, Passthrough{})
	}
}

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, initializedModule(t))
}

func TestModuleRoutes(t *testing.T) {
	m := initializedModule(t)().(*Module)
	if err := m.Init(context.Background(), module.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, rt := range m.Routes() {
		if rt.Handler == nil {
			t.Errorf("route %s %s has nil handler", rt.Method, rt.Path)
		}
	}
}

func TestInit_RequiresCollaborators(t *testing.T) {
	m := New(devices.New(testEngine(t)), audit.New(), testEngine(t), nil)
	err := m.Init(context.Background(), module.Dependencies{Logger: zap.NewNop()})
	if err == nil {
		t.Fatal("Init must fail when devices and audit are not initialized")
	}
}
