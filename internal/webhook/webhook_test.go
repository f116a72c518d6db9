package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/monitor"
	"github.com/schoolgate/schoolgate/pkg/module"
	"github.com/schoolgate/schoolgate/pkg/module/moduletest"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, func() module.Module { return New() })
}

type capture struct {
	payloads chan Payload
}

func newCaptureServer(t *testing.T) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{payloads: make(chan Payload, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		c.payloads <- p
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func startedModule(t *testing.T, url string) (*Module, *event.Bus) {
	t.Helper()
	logger := zap.NewNop()
	bus := event.NewBus(logger)

	v := viper.New()
	v.Set("url", url)
	deps := module.Dependencies{
		Config: config.New(v),
		Logger: logger,
		Bus:    bus,
	}

	m := New()
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, bus
}

func TestDeliversBlockedAuditRecords(t *testing.T) {
	srv, c := newCaptureServer(t)
	_, bus := startedModule(t, srv.URL)

	_ = bus.Publish(context.Background(), module.Event{
		Topic:     audit.TopicRecorded,
		Source:    "audit",
		Timestamp: time.Now().UTC(),
		Payload:   audit.Record{ID: "rec-1", Status: audit.StatusBlocked},
	})

	select {
	case p := <-c.payloads:
		if p.Event != audit.TopicRecorded {
			t.Errorf("Event = %q, want %q", p.Event, audit.TopicRecorded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked audit record was not delivered")
	}
}

func TestSkipsSuccessfulAuditRecords(t *testing.T) {
	srv, c := newCaptureServer(t)
	_, bus := startedModule(t, srv.URL)

	_ = bus.Publish(context.Background(), module.Event{
		Topic:     audit.TopicRecorded,
		Source:    "audit",
		Timestamp: time.Now().UTC(),
		Payload:   audit.Record{ID: "rec-1", Status: audit.StatusSuccess},
	})

	select {
	case p := <-c.payloads:
		t.Fatalf("successful record was delivered: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeliversProbeFailures(t *testing.T) {
	srv, c := newCaptureServer(t)
	_, bus := startedModule(t, srv.URL)

	_ = bus.Publish(context.Background(), module.Event{
		Topic:     monitor.TopicProbeFailed,
		Source:    "monitor",
		Timestamp: time.Now().UTC(),
		Payload:   monitor.ProbeFailedEvent{CheckID: "chk-1", DeviceID: "dev-1"},
	})

	select {
	case p := <-c.payloads:
		if p.Event != monitor.TopicProbeFailed {
			t.Errorf("Event = %q, want %q", p.Event, monitor.TopicProbeFailed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("probe failure was not delivered")
	}
}

func TestStopUnsubscribes(t *testing.T) {
	srv, c := newCaptureServer(t)
	m, bus := startedModule(t, srv.URL)

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_ = bus.Publish(context.Background(), module.Event{
		Topic:   monitor.TopicProbeFailed,
		Payload: monitor.ProbeFailedEvent{CheckID: "chk-1"},
	})

	select {
	case p := <-c.payloads:
		t.Fatalf("event delivered after Stop: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNoURLDropsQuietly(t *testing.T) {
	_, bus := startedModule(t, "")

	// Must not panic or block with no URL configured.
	_ = bus.Publish(context.Background(), module.Event{
		Topic:   monitor.TopicProbeFailed,
		Payload: monitor.ProbeFailedEvent{CheckID: "chk-1"},
	})
}
