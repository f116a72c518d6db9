package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

type fakeModule struct {
	info   module.Info
	routes []module.Route
}

func (f *fakeModule) Info() module.Info                                   { return f.info }
func (f *fakeModule) Init(context.Context, module.Dependencies) error     { return nil }
func (f *fakeModule) Start(context.Context) error                         { return nil }
func (f *fakeModule) Stop(context.Context) error                          { return nil }
func (f *fakeModule) Routes() []module.Route                              { return f.routes }

type fakeSource struct {
	mods []*fakeModule
}

func (s *fakeSource) All() []module.Module {
	out := make([]module.Module, len(s.mods))
	for i, m := range s.mods {
		out[i] = m
	}
	return out
}

func (s *fakeSource) AllRoutes() map[string][]module.Route {
	out := make(map[string][]module.Route)
	for _, m := range s.mods {
		out[m.info.Name] = m.routes
	}
	return out
}

func testSource() *fakeSource {
	return &fakeSource{mods: []*fakeModule{
		{
			info: module.Info{Name: "echo", Version: "1.0.0", Description: "test module"},
			routes: []module.Route{
				{Method: "GET", Path: "/ping", Handler: func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte(`{"pong":true}`))
				}},
			},
		},
	}}
}

func newTestServer(t *testing.T, ready ReadinessChecker) *httptest.Server {
	t.Helper()
	s := New("127.0.0.1:0", testSource(), zap.NewNop(), ready, nil, false)
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context) error { return nil })
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	notReady := newTestServer(t, func(ctx context.Context) error { return errors.New("store offline") })
	resp, err = http.Get(notReady.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", resp.StatusCode)
	}
}

func TestModuleRoutesMounted(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/v1/echo/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("mounted route status = %d, want 200", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Service != "schoolgate" {
		t.Errorf("body = %+v", body)
	}
}

func TestModulesEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/v1/modules")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var mods []ModuleResponse
	if err := json.NewDecoder(resp.Body).Decode(&mods); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mods) != 1 || mods[0].Name != "echo" {
		t.Errorf("modules = %+v", mods)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	v, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := v.GetInt("server.port"); got != 8443 {
		t.Errorf("server.port = %d, want 8443", got)
	}
	if got := v.GetString("database.driver"); got != "sqlite" {
		t.Errorf("database.driver = %q, want sqlite", got)
	}
	if !v.GetBool("modules.transmit.enabled") {
		t.Error("modules.transmit.enabled should default true")
	}
}

func TestConfigAddr(t *testing.T) {
	c := &Config{Host: "127.0.0.1", Port: 9443}
	if got := c.Addr(); got != "127.0.0.1:9443" {
		t.Errorf("Addr() = %q", got)
	}
}
