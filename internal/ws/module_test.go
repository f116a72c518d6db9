package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/auth"
	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/monitor"
	"github.com/schoolgate/schoolgate/internal/store"
	"github.com/schoolgate/schoolgate/pkg/module"
	"github.com/schoolgate/schoolgate/pkg/module/moduletest"
	"go.uber.org/zap"
)

// initializedModule builds a ws module whose auth collaborator is
// already initialized, mirroring the registry's dependency ordering.
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

		authMod := auth.New()
		if err := authMod.Init(context.Background(), deps); err != nil {
			t.Fatalf("auth init: %v", err)
		}
		return New(authMod)
	}
}

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, initializedModule(t))
}

func TestInit_RequiresAuth(t *testing.T) {
	m := New(auth.New())
	err := m.Init(context.Background(), module.Dependencies{Logger: zap.NewNop()})
	if err == nil {
		t.Fatal("Init must fail when auth module is not initialized")
	}
}

type wsFixture struct {
	mod *Module
	bus *event.Bus
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := zap.NewNop()
	bus := event.NewBus(logger)
	deps := module.Dependencies{
		Config: config.New(nil),
		Logger: logger,
		Store:  st,
		Bus:    bus,
	}
	ctx := context.Background()

	authMod := auth.New()
	if err := authMod.Init(ctx, deps); err != nil {
		t.Fatalf("auth init: %v", err)
	}
	m := New(authMod)
	if err := m.Init(ctx, deps); err != nil {
		t.Fatalf("ws init: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("ws start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	return &wsFixture{mod: m, bus: bus}
}

// attachClient injects a client directly into the hub so broadcast
// delivery can be observed without a real socket.
func (f *wsFixture) attachClient(t *testing.T) *Client {
	t.Helper()
	client := newTestClient("tester")
	f.mod.Hub().Register(client)
	t.Cleanup(func() { f.mod.Hub().Unregister(client) })
	return client
}

func expectMessage(t *testing.T, client *Client, want MessageType) Message {
	t.Helper()
	select {
	case msg := <-client.send:
		if msg.Type != want {
			t.Fatalf("message type = %v, want %v", msg.Type, want)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no %v message broadcast", want)
		return Message{}
	}
}

func TestBroadcastsAuditRecords(t *testing.T) {
	f := newWSFixture(t)
	client := f.attachClient(t)

	rec := audit.Record{ID: "rec-1", Status: audit.StatusSuccess}
	_ = f.bus.Publish(context.Background(), module.Event{
		Topic:     audit.TopicRecorded,
		Source:    "audit",
		Timestamp: time.Now().UTC(),
		Payload:   rec,
	})

	msg := expectMessage(t, client, MessageAuditRecorded)
	got, ok := msg.Data.(audit.Record)
	if !ok {
		t.Fatalf("Data is %T, want audit.Record", msg.Data)
	}
	if got.ID != "rec-1" {
		t.Errorf("record ID = %q, want rec-1", got.ID)
	}
}

func TestBroadcastsDeviceLifecycle(t *testing.T) {
	f := newWSFixture(t)
	client := f.attachClient(t)

	_ = f.bus.Publish(context.Background(), module.Event{
		Topic:     devices.TopicRevoked,
		Source:    "devices",
		Timestamp: time.Now().UTC(),
		Payload: devices.LifecycleEvent{
			DeviceID: "dev-1",
			Actor:    "admin@test",
			Reason:   "compromised",
		},
	})

	msg := expectMessage(t, client, MessageDeviceLifecycle)
	data, ok := msg.Data.(DeviceLifecycleData)
	if !ok {
		t.Fatalf("Data is %T, want DeviceLifecycleData", msg.Data)
	}
	if data.Topic != devices.TopicRevoked || data.DeviceID != "dev-1" {
		t.Errorf("data = %+v, want revoked dev-1", data)
	}
}

func TestBroadcastsProbeFailures(t *testing.T) {
	f := newWSFixture(t)
	client := f.attachClient(t)

	_ = f.bus.Publish(context.Background(), module.Event{
		Topic:     monitor.TopicProbeFailed,
		Source:    "monitor",
		Timestamp: time.Now().UTC(),
		Payload:   monitor.ProbeFailedEvent{CheckID: "chk-1", DeviceID: "dev-1"},
	})

	expectMessage(t, client, MessageProbeFailed)
}

func TestStopUnsubscribes(t *testing.T) {
	f := newWSFixture(t)
	client := f.attachClient(t)

	if err := f.mod.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_ = f.bus.Publish(context.Background(), module.Event{
		Topic:   audit.TopicRecorded,
		Payload: audit.Record{ID: "rec-after-stop"},
	})

	select {
	case msg := <-client.send:
		t.Fatalf("message broadcast after Stop: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleEvents_RejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/ws/events", nil)
	rr := httptest.NewRecorder()
	f.mod.handleEvents(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHandleEvents_RejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/ws/events?token=not-a-jwt", nil)
	rr := httptest.NewRecorder()
	f.mod.handleEvents(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
