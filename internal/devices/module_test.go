package devices

import (
	"testing"

	"github.com/schoolgate/schoolgate/pkg/module"
	"github.com/schoolgate/schoolgate/pkg/module/moduletest"
)

func TestModuleContract(t *testing.T) {
	moduletest.TestModuleContract(t, func() module.Module {
		return New(testMasterEngine(t))
	})
}

func TestModuleRoutes(t *testing.T) {
	m := New(testMasterEngine(t))
	routes := m.Routes()
	if len(routes) == 0 {
		t.Fatal("expected routes")
	}
	for _, rt := range routes {
		if rt.Handler == nil {
			t.Errorf("route %s %s has nil handler", rt.Method, rt.Path)
		}
	}
}
