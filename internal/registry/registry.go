// Package registry manages module lifecycle: registration, dependency
// resolution, initialization, and shutdown of SchoolGate modules.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered modules.
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]module.Module
	infos    map[string]module.Info
	order    []string // topological order after Validate
	disabled map[string]bool
	logger   *zap.Logger
}

// New creates a new module registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		modules:  make(map[string]module.Module),
		infos:    make(map[string]module.Info),
		disabled: make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a module to the registry. Must be called before Validate.
func (r *Registry) Register(m module.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := m.Info()
	name := info.Name

	if name == "" {
		return fmt.Errorf("module has empty name")
	}
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}

	r.modules[name] = m
	r.infos[name] = info
	r.logger.Info("module registered",
		zap.String("name", name),
		zap.String("version", info.Version),
	)
	return nil
}

// Validate verifies that all declared dependencies exist and resolves
// the start order via topological sort. A required module with a
// missing dependency is a hard error; optional modules are disabled.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		for _, dep := range info.Dependencies {
			if _, ok := r.modules[dep]; !ok {
				if info.Required {
					return fmt.Errorf("module %q depends on %q which is not registered", name, dep)
				}
				r.logger.Warn("disabling module due to missing dependency",
					zap.String("name", name),
					zap.String("missing_dep", dep),
				)
				r.disabled[name] = true
				break
			}
		}
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("module dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("active", len(r.order)),
		zap.Int("disabled", len(r.disabled)),
	)
	return nil
}

// InitAll initializes all active modules in dependency order.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) module.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		m := r.modules[name]
		r.logger.Info("initializing module", zap.String("name", name))
		if err := m.Init(ctx, depsFn(name)); err != nil {
			info := r.infos[name]
			if info.Required {
				return fmt.Errorf("required module %q failed to initialize: %w", name, err)
			}
			r.logger.Error("optional module failed to initialize, disabling",
				zap.String("name", name),
				zap.Error(err),
			)
			r.disabled[name] = true
		}
	}
	return nil
}

// StartAll starts all initialized modules in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		m := r.modules[name]
		r.logger.Info("starting module", zap.String("name", name))
		if err := m.Start(ctx); err != nil {
			info := r.infos[name]
			if info.Required {
				return fmt.Errorf("required module %q failed to start: %w", name, err)
			}
			r.logger.Error("optional module failed to start, disabling",
				zap.String("name", name),
				zap.Error(err),
			)
			r.disabled[name] = true
		}
	}
	return nil
}

// StopAll stops all active modules in reverse dependency order.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.disabled[name] {
			continue
		}
		m := r.modules[name]
		r.logger.Info("stopping module", zap.String("name", name))
		if err := m.Stop(ctx); err != nil {
			r.logger.Error("failed to stop module", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active module by name.
func (r *Registry) Get(name string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if ok && r.disabled[name] {
		return nil, false
	}
	return m, ok
}

// All returns all active (non-disabled) modules in dependency order.
func (r *Registry) All() []module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]module.Module, 0, len(r.order))
	for _, name := range r.order {
		if !r.disabled[name] {
			result = append(result, r.modules[name])
		}
	}
	return result
}

// AllRoutes returns HTTP routes from all active modules implementing HTTPProvider.
func (r *Registry) AllRoutes() map[string][]module.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]module.Route)
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		if hp, ok := r.modules[name].(module.HTTPProvider); ok {
			if mr := hp.Routes(); len(mr) > 0 {
				routes[name] = mr
			}
		}
	}
	return routes
}

// IsDisabled returns whether a module has been disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// topologicalSort returns module names in dependency order using Kahn's algorithm.
func (r *Registry) topologicalSort() ([]string, error) {
	active := make(map[string]bool)
	for name := range r.modules {
		if !r.disabled[name] {
			active[name] = true
		}
	}

	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // dep -> modules that depend on it

	for name := range active {
		inDegree[name] = 0
	}

	for name := range active {
		for _, dep := range r.infos[name].Dependencies {
			if active[dep] {
				inDegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(active) {
		var cycled []string
		for name := range active {
			if inDegree[name] > 0 {
				cycled = append(cycled, name)
			}
		}
		return nil, fmt.Errorf("dependency cycle detected among modules: %v", cycled)
	}

	return order, nil
}
