// Package moduletest provides shared contract tests that verify any
// module.Module implementation behaves correctly. Every module's test
// file should call TestModuleContract to ensure conformance.
package moduletest

import (
	"context"
	"testing"

	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/store"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// TestModuleContract runs a suite of behavioral contract tests against
// any module.Module implementation. Call this from each module's _test.go:
//
//	func TestContract(t *testing.T) {
//	    moduletest.TestModuleContract(t, func() module.Module { return devices.New() })
//	}
func TestModuleContract(t *testing.T, factory func() module.Module) {
	t.Helper()

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		m := factory()
		info := m.Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version must not be empty")
		}
	})

	t.Run("Init_succeeds_with_valid_deps", func(t *testing.T) {
		m := factory()
		deps := testDeps(t, m.Info().Name)
		if err := m.Init(context.Background(), deps); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
	})

	t.Run("Stop_without_Start_does_not_panic", func(t *testing.T) {
		m := factory()
		deps := testDeps(t, m.Info().Name)
		if err := m.Init(context.Background(), deps); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := m.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Info_is_idempotent", func(t *testing.T) {
		m := factory()
		a := m.Info()
		b := m.Info()
		if a.Name != b.Name || a.Version != b.Version {
			t.Error("Info() must return consistent results")
		}
	})
}

// WithInitialized initializes the module against fresh in-memory
// dependencies and runs fn. Useful for exercising Start/Stop behavior
// beyond the base contract.
func WithInitialized(t *testing.T, m module.Module, fn func()) {
	t.Helper()
	deps := testDeps(t, m.Info().Name)
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	fn()
}

// testDeps builds real in-memory dependencies so Init can run its
// migrations and wiring, not just store a logger.
func testDeps(t *testing.T, name string) module.Dependencies {
	t.Helper()
	logger := zap.NewNop().Named(name)

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return module.Dependencies{
		Config: config.New(nil),
		Logger: logger,
		Store:  st,
		Bus:    event.NewBus(logger),
	}
}
