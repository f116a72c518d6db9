// Package module defines the SDK types shared by all SchoolGate
// gateway modules: lifecycle, dependency injection, HTTP routes,
// storage, and the event bus.
package module

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Module is the interface every SchoolGate subsystem implements.
type Module interface {
	// Info returns the module's metadata and dependency declarations.
	Info() Info

	// Init prepares the module with its injected dependencies.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins the module's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the module.
	Stop(ctx context.Context) error
}

// Info contains module metadata and dependency declarations.
type Info struct {
	Name         string   // Unique identifier: "devices", "audit", "transmit"
	Version      string   // Semantic version string
	Description  string   // Human-readable summary
	Dependencies []string // Module names that must initialize first
	Required     bool     // If true, the gateway refuses to start without it
}

// Dependencies provides controlled access to shared services.
// Injected by the registry during Init.
type Dependencies struct {
	Config Config      // Scoped to this module's config section
	Logger *zap.Logger // Named logger for this module
	Store  Store       // Shared SQLite store
	Bus    EventBus    // Event publish/subscribe between modules
}

// HTTPProvider is implemented by modules that expose HTTP routes.
// Routes are mounted under /api/v1/{module}/ by the server.
type HTTPProvider interface {
	Routes() []Route
}

// Route represents an HTTP route exposed by a module.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HealthChecker is implemented by modules that report health status.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// HealthStatus is a module's health report.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Config abstracts configuration access. Wraps Viper today.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Migration is a single schema migration owned by a module.
// Versions must be provided in ascending order.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store abstracts the shared persistence layer handed to modules.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, moduleName string, migrations []Migration) error
}

// Publisher sends events to the bus. Use this thin interface in code
// that only needs to emit events (follows io.Writer pattern).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus. Use this thin interface in
// code that only needs to listen for events (follows io.Reader pattern).
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus provides typed publish/subscribe between modules.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Event represents a typed message on the bus.
type Event struct {
	Topic     string
	Source    string // Module name that emitted the event
	Timestamp time.Time
	Payload   any // Type depends on topic
}

// EventHandler processes events from the bus.
type EventHandler func(ctx context.Context, event Event)
