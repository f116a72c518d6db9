// Package auth implements operator authentication: local accounts with
// bcrypt passwords, JWT access tokens with rotating refresh tokens, and
// role-based authorization for the admin API.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ module.Module       = (*Module)(nil)
	_ module.HTTPProvider = (*Module)(nil)
)

const (
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 7 * 24 * time.Hour
	tokenCleanupInterval  = time.Hour
	tokenCleanupOpTimeout = time.Minute
)

// Module implements the auth gateway module.
type Module struct {
	logger  *zap.Logger
	store   *UserStore
	tokens  *TokenService
	service *Service

	stop chan struct{}
	done chan struct{}
}

// New creates an auth module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:        "auth",
		Version:     "1.0.0",
		Description: "Operator accounts, JWT sessions, and role authorization",
		Required:    true,
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	m.logger = deps.Logger
	if err := deps.Store.Migrate(ctx, "auth", migrations()); err != nil {
		return fmt.Errorf("auth migrations: %w", err)
	}
	m.store = NewUserStore(deps.Store.DB())

	secret, err := resolveJWTSecret(deps.Config, m.logger)
	if err != nil {
		return err
	}
	accessTTL := defaultAccessTTL
	if deps.Config.IsSet("access_token_ttl") {
		accessTTL = deps.Config.GetDuration("access_token_ttl")
	}
	refreshTTL := defaultRefreshTTL
	if deps.Config.IsSet("refresh_token_ttl") {
		refreshTTL = deps.Config.GetDuration("refresh_token_ttl")
	}

	m.tokens = NewTokenService(secret, accessTTL, refreshTTL)
	m.service = NewService(m.store, m.tokens, m.logger)
	m.logger.Info("auth module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.cleanupLoop()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.stop == nil {
		return nil
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// cleanupLoop periodically removes expired and revoked refresh tokens.
func (m *Module) cleanupLoop() {
	defer close(m.done)
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), tokenCleanupOpTimeout)
			if err := m.store.CleanExpiredTokens(ctx); err != nil {
				m.logger.Warn("refresh token cleanup failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Service exposes the auth service to other modules. Valid only after Init.
func (m *Module) Service() *Service {
	return m.service
}

// Tokens exposes the token service for modules that authenticate
// outside the standard middleware, such as WebSocket query tokens.
// Valid only after Init.
func (m *Module) Tokens() *TokenService {
	return m.tokens
}

// HTTPMiddleware returns the JWT authentication middleware for the
// server to wrap the API with. Valid only after Init.
func (m *Module) HTTPMiddleware() func(http.Handler) http.Handler {
	return Middleware(m.tokens)
}

// Routes implements module.HTTPProvider.
func (m *Module) Routes() []module.Route {
	return []module.Route{
		{Method: "POST", Path: "/login", Handler: m.handleLogin},
		{Method: "POST", Path: "/refresh", Handler: m.handleRefresh},
		{Method: "POST", Path: "/logout", Handler: m.handleLogout},
		{Method: "POST", Path: "/setup", Handler: m.handleSetup},
		{Method: "GET", Path: "/setup/status", Handler: m.handleSetupStatus},
		{Method: "GET", Path: "/me", Handler: m.handleMe},
		{Method: "POST", Path: "/users", Handler: RequireRole(m.handleCreateUser, RoleAdmin)},
		{Method: "GET", Path: "/users", Handler: RequireRole(m.handleListUsers, RoleAdmin)},
		{Method: "GET", Path: "/users/{id}", Handler: RequireRole(m.handleGetUser, RoleAdmin)},
		{Method: "PUT", Path: "/users/{id}", Handler: RequireRole(m.handleUpdateUser, RoleAdmin)},
		{Method: "DELETE", Path: "/users/{id}", Handler: RequireRole(m.handleDeleteUser, RoleAdmin)},
	}
}

// resolveJWTSecret reads the signing secret from config, generating an
// ephemeral one (sessions die on restart) when none is configured.
func resolveJWTSecret(cfg module.Config, logger *zap.Logger) ([]byte, error) {
	if cfg.IsSet("jwt_secret") {
		raw := cfg.GetString("jwt_secret")
		if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) >= 32 {
			return decoded, nil
		}
		if len(raw) >= 32 {
			return []byte(raw), nil
		}
		return nil, fmt.Errorf("jwt_secret must be at least 32 bytes")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	logger.Warn("no jwt_secret configured, using ephemeral secret; sessions will not survive restarts")
	return secret, nil
}
