package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/auth"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/monitor"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module       = (*Module)(nil)
	_ module.HTTPProvider = (*Module)(nil)
)

// Module implements the ws gateway module.
type Module struct {
	authMod *auth.Module

	logger *zap.Logger
	bus    module.EventBus
	hub    *Hub

	unsubscribe []func()
}

// New creates a ws module wired against the auth module for token
// validation on upgrade.
func New(authMod *auth.Module) *Module {
	return &Module{authMod: authMod}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "ws",
		Version:      "1.0.0",
		Description:  "Real-time event streaming over WebSocket",
		Dependencies: []string{"auth"},
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	if m.authMod == nil || m.authMod.Tokens() == nil {
		return fmt.Errorf("ws module requires an initialized auth module")
	}
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.hub = NewHub(m.logger)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.subscribe()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	return nil
}

// Hub exposes the hub for broadcast count inspection.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Routes implements module.HTTPProvider. The server's auth middleware
// skips the ws prefix; authentication happens via the token query
// parameter during the upgrade instead.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "GET", Path: "/events", Handler: m.handleEvents},
	}
}

// subscribe forwards bus events to connected clients.
func (m *Module) subscribe() {
	if m.bus == nil {
		return
	}

	m.unsubscribe = append(m.unsubscribe,
		m.bus.Subscribe(audit.TopicRecorded, func(_ context.Context, ev module.Event) {
			rec, ok := ev.Payload.(audit.Record)
			if !ok {
				return
			}
			m.hub.Broadcast(Message{
				Type:      MessageAuditRecorded,
				Timestamp: ev.Timestamp,
				Data:      rec,
			})
		}),
		m.bus.Subscribe(monitor.TopicProbeFailed, func(_ context.Context, ev module.Event) {
			probe, ok := ev.Payload.(monitor.ProbeFailedEvent)
			if !ok {
				return
			}
			m.hub.Broadcast(Message{
				Type:      MessageProbeFailed,
				Timestamp: ev.Timestamp,
				Data:      probe,
			})
		}),
	)

	lifecycleTopics := []string{
		devices.TopicRegistered,
		devices.TopicApproved,
		devices.TopicSuspended,
		devices.TopicRevoked,
	}
	for _, topic := range lifecycleTopics {
		topic := topic
		m.unsubscribe = append(m.unsubscribe,
			m.bus.Subscribe(topic, func(_ context.Context, ev module.Event) {
				lc, ok := ev.Payload.(devices.LifecycleEvent)
				if !ok {
					return
				}
				m.hub.Broadcast(Message{
					Type:      MessageDeviceLifecycle,
					Timestamp: ev.Timestamp,
					Data: DeviceLifecycleData{
						Topic:      topic,
						DeviceID:   lc.DeviceID,
						DeviceType: string(lc.DeviceType),
						Actor:      lc.Actor,
						Reason:     lc.Reason,
					},
				})
			}),
		)
	}

	m.logger.Info("subscribed to gateway events for WebSocket broadcasting")
}

// handleEvents upgrades the connection and streams gateway events.
//
//	@Summary		Stream gateway events
//	@Description	Upgrades to a WebSocket and streams audit records, device lifecycle transitions, and failed probes. Authenticate with the token query parameter.
//	@Tags			ws
//	@Param			token	query	string	true	"Access token"
//	@Success		101		"Switching Protocols"
//	@Failure		401		{string}	string
//	@Router			/ws/events [get]
func (m *Module) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Browser WebSocket APIs cannot set headers, so the JWT arrives as
	// a query parameter.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}
	claims, err := m.authMod.Tokens().ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is not checked; the token gates access.
		InsecureSkipVerify: true,
	})
	if err != nil {
		m.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan Message, 256),
		logger: m.logger,
	}
	m.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until the client disconnects.
	client.readPump(ctx)

	m.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
