package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// fakeModule is a configurable test double.
type fakeModule struct {
	info    module.Info
	initErr error
	started bool
	stopped bool
}

func (f *fakeModule) Info() module.Info { return f.info }
func (f *fakeModule) Init(_ context.Context, _ module.Dependencies) error {
	return f.initErr
}
func (f *fakeModule) Start(_ context.Context) error {
	f.started = true
	return nil
}
func (f *fakeModule) Stop(_ context.Context) error {
	f.stopped = true
	return nil
}

func testDeps(name string) module.Dependencies {
	return module.Dependencies{Logger: zap.NewNop().Named(name)}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := New(zap.NewNop())
	m := &fakeModule{info: module.Info{Name: "devices", Version: "0.1.0"}}

	if err := r.Register(m); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(m); err == nil {
		t.Error("expected error registering duplicate name")
	}
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Register(&fakeModule{}); err == nil {
		t.Error("expected error for empty module name")
	}
}

func TestValidate_OrdersDependencies(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{info: module.Info{Name: "transmit", Version: "0.1.0", Dependencies: []string{"devices", "audit"}}})
	r.Register(&fakeModule{info: module.Info{Name: "devices", Version: "0.1.0"}})
	r.Register(&fakeModule{info: module.Info{Name: "audit", Version: "0.1.0"}})

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	pos := make(map[string]int)
	for i, m := range r.All() {
		pos[m.Info().Name] = i
	}
	if pos["transmit"] < pos["devices"] || pos["transmit"] < pos["audit"] {
		t.Errorf("transmit must start after its dependencies; order positions: %v", pos)
	}
}

func TestValidate_RequiredMissingDep_Fails(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{info: module.Info{Name: "transmit", Version: "0.1.0", Required: true, Dependencies: []string{"devices"}}})

	if err := r.Validate(); err == nil {
		t.Error("expected error for required module with missing dependency")
	}
}

func TestValidate_OptionalMissingDep_Disables(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{info: module.Info{Name: "monitor", Version: "0.1.0", Dependencies: []string{"devices"}}})

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("monitor") {
		t.Error("optional module with missing dependency should be disabled")
	}
}

func TestValidate_DetectsCycle(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{info: module.Info{Name: "a", Version: "0.1.0", Dependencies: []string{"b"}}})
	r.Register(&fakeModule{info: module.Info{Name: "b", Version: "0.1.0", Dependencies: []string{"a"}}})

	if err := r.Validate(); err == nil {
		t.Error("expected cycle detection error")
	}
}

func TestInitAll_RequiredFailure_Aborts(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{
		info:    module.Info{Name: "devices", Version: "0.1.0", Required: true},
		initErr: errors.New("no database"),
	})
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	err := r.InitAll(context.Background(), testDeps)
	if err == nil {
		t.Error("expected InitAll to fail for required module")
	}
}

func TestInitAll_OptionalFailure_Disables(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{
		info:    module.Info{Name: "monitor", Version: "0.1.0"},
		initErr: errors.New("probe socket unavailable"),
	})
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := r.InitAll(context.Background(), testDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if !r.IsDisabled("monitor") {
		t.Error("failed optional module should be disabled")
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	r := New(zap.NewNop())
	m := &fakeModule{info: module.Info{Name: "audit", Version: "0.1.0"}}
	r.Register(m)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.InitAll(context.Background(), testDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !m.started {
		t.Error("module not started")
	}

	r.StopAll(context.Background())
	if !m.stopped {
		t.Error("module not stopped")
	}
}

func TestGet_DisabledModule_NotReturned(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(&fakeModule{info: module.Info{Name: "monitor", Version: "0.1.0", Dependencies: []string{"missing"}}})
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, ok := r.Get("monitor"); ok {
		t.Error("Get should not return disabled modules")
	}
}
