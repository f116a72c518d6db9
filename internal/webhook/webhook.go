// Package webhook delivers gateway security events to a configurable
// HTTP endpoint: blocked or unregistered transmission attempts, device
// lifecycle changes, and failed reachability probes.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/monitor"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ module.Module = (*Module)(nil)

// Config holds the webhook module configuration.
type Config struct {
	URL     string
	Timeout time.Duration
	Enabled bool
}

// Module implements the webhook notifier module.
type Module struct {
	logger *zap.Logger
	bus    module.EventBus
	cfg    Config
	client *http.Client

	unsubscribe []func()
}

// New creates a webhook module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:        "webhook",
		Version:     "1.0.0",
		Description: "Sends HTTP POST notifications to a configurable webhook URL on gateway events",
	}
}

func (m *Module) Init(_ context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = Config{
		Timeout: 10 * time.Second,
		Enabled: true,
	}
	if deps.Config != nil {
		if u := deps.Config.GetString("url"); u != "" {
			m.cfg.URL = u
		}
		if d := deps.Config.GetDuration("timeout"); d > 0 {
			m.cfg.Timeout = d
		}
		if deps.Config.IsSet("enabled") {
			m.cfg.Enabled = deps.Config.GetBool("enabled")
		}
	}

	m.client = &http.Client{Timeout: m.cfg.Timeout}

	if m.cfg.URL == "" {
		m.logger.Warn("webhook URL not configured; notifications will be dropped",
			zap.String("component", "webhook"),
		)
	}

	m.logger.Info("webhook module initialized",
		zap.String("url", m.cfg.URL),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Bool("enabled", m.cfg.Enabled),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.bus == nil {
		return nil
	}
	topics := []string{
		audit.TopicRecorded,
		devices.TopicRegistered,
		devices.TopicApproved,
		devices.TopicSuspended,
		devices.TopicRevoked,
		monitor.TopicProbeFailed,
	}
	for _, topic := range topics {
		m.unsubscribe = append(m.unsubscribe, m.bus.Subscribe(topic, m.handleEvent))
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	return nil
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func (m *Module) handleEvent(ctx context.Context, event module.Event) {
	if !m.cfg.Enabled || m.cfg.URL == "" {
		return
	}

	// Successful transmissions are routine; only blocked, failed, or
	// unregistered attempts warrant a notification.
	if event.Topic == audit.TopicRecorded {
		rec, ok := event.Payload.(audit.Record)
		if !ok || rec.Status == audit.StatusSuccess {
			return
		}
	}

	payload := Payload{
		Event:     event.Topic,
		Source:    event.Source,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal webhook payload",
			zap.String("topic", event.Topic),
			zap.Error(err),
		)
		return
	}

	m.send(ctx, body, event.Topic)
}

func (m *Module) send(ctx context.Context, body []byte, topic string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("failed to create webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SchoolGate-Webhook/1.0")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("url", m.cfg.URL),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		m.logger.Warn("webhook endpoint returned error",
			zap.String("url", m.cfg.URL),
			zap.String("topic", topic),
			zap.Int("status_code", resp.StatusCode),
		)
		return
	}

	m.logger.Debug("webhook delivered",
		zap.String("topic", topic),
		zap.Int("status_code", resp.StatusCode),
	)
}
