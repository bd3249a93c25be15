// Package pluginmgr discovers, loads, unloads, and health-checks platform
// plugins. Discovery is registry-driven (name -> factory), never
// reflection- or filesystem-entry-point-driven, so the registry can be
// backed by anything from a hard-coded map to a config file without
// changing the manager's logic.
package pluginmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mystiatech/conductor/internal/cerrors"
	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
)

// Handler is the plugin capability set every registered plugin must satisfy.
type Handler interface {
	Initialize(config map[string]interface{}) bool
	Shutdown()
	HealthCheck() conductor.PluginHealth
	HandleRequest(req conductor.Request) (conductor.Response, error)
}

// Factory constructs a fresh Handler instance for a plugin name.
type Factory func() Handler

// Registry is a name -> factory map. A factory that panics or is invalid is
// skipped with a warning during discovery; it never blocks other entries.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty plugin factory registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under name. Re-registering the same name
// overwrites the previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) snapshot() map[string]Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Factory, len(r.factories))
	for k, v := range r.factories {
		out[k] = v
	}
	return out
}

type entry struct {
	meta    conductor.PluginMetadata
	handler Handler
}

// Manager owns plugin lifecycle and health for every registered plugin.
type Manager struct {
	registry *Registry

	mu      sync.RWMutex
	plugins map[string]*entry

	// nameLocks serializes load/unload per plugin name without blocking
	// operations against other plugins.
	nameLocks   map[string]*sync.Mutex
	nameLocksMu sync.Mutex

	metrics *metrics.Registry
}

// New constructs a Manager bound to a Registry. reg may be nil, in which
// case health-check and failure metrics are simply not recorded.
func New(registry *Registry, reg *metrics.Registry) *Manager {
	return &Manager{
		registry:  registry,
		plugins:   map[string]*entry{},
		nameLocks: map[string]*sync.Mutex{},
		metrics:   reg,
	}
}

func (m *Manager) lockFor(name string) *sync.Mutex {
	m.nameLocksMu.Lock()
	defer m.nameLocksMu.Unlock()
	l, ok := m.nameLocks[name]
	if !ok {
		l = &sync.Mutex{}
		m.nameLocks[name] = l
	}
	return l
}

// DiscoverAndRegister enumerates the factory registry and creates
// PluginMetadata entries in state Registered for every valid factory.
// Idempotent: re-running re-enumerates but never double-registers an
// already-known plugin.
func (m *Manager) DiscoverAndRegister() {
	for name, factory := range m.registry.snapshot() {
		m.mu.RLock()
		_, exists := m.plugins[name]
		m.mu.RUnlock()
		if exists {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					clog.Plugin().Warn().Str("plugin", name).Interface("panic", r).Msg("plugin factory panicked, skipping")
				}
			}()
			handler := factory()
			if handler == nil {
				clog.Plugin().Warn().Str("plugin", name).Msg("plugin factory returned nil, skipping")
				return
			}

			m.mu.Lock()
			m.plugins[name] = &entry{
				meta: conductor.PluginMetadata{
					Name:  name,
					State: conductor.PluginRegistered,
				},
				handler: handler,
			}
			m.mu.Unlock()
		}()
	}
}

// LoadPlugin loads a plugin with no config, satisfying scaler.PluginController.
func (m *Manager) LoadPlugin(name string) error {
	return m.LoadPluginWithConfig(name, nil)
}

// LoadPluginWithConfig transitions a plugin Registered -> Loading -> Active.
// If the plugin is already loaded (Active/Loaded/Inactive), it returns nil
// without reinitializing.
func (m *Manager) LoadPluginWithConfig(name string, config map[string]interface{}) error {
	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	e, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrPluginNotFound, name)
	}
	if e.meta.State.HasInstance() {
		m.mu.Unlock()
		return nil
	}
	e.meta.State = conductor.PluginLoading
	m.mu.Unlock()

	ok2 := e.handler.Initialize(config)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok2 {
		e.meta.State = conductor.PluginError
		e.meta.LastError = "initialize returned false"
		if m.metrics != nil {
			m.metrics.RecordPluginFailure(name, "init_failed")
		}
		return fmt.Errorf("%w: %s", cerrors.ErrPluginInitFailed, name)
	}
	e.meta.State = conductor.PluginActive
	e.meta.LoadedAt = time.Now()
	e.meta.LastError = ""
	return nil
}

// UnloadPlugin transitions Active -> Unloading -> Registered. Idempotent
// when the plugin is already unloaded.
func (m *Manager) UnloadPlugin(name string) error {
	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	e, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrPluginNotFound, name)
	}
	if !e.meta.State.HasInstance() {
		m.mu.Unlock()
		return nil
	}
	e.meta.State = conductor.PluginUnloading
	m.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				clog.Plugin().Warn().Str("plugin", name).Interface("panic", r).Msg("plugin shutdown panicked")
			}
		}()
		e.handler.Shutdown()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	e.meta.State = conductor.PluginRegistered
	return nil
}

// GetPlugin returns a plugin's handler iff it is currently loaded.
func (m *Manager) GetPlugin(name string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.plugins[name]
	if !ok || !e.meta.State.HasInstance() {
		return nil, false
	}
	return e.handler, true
}

// ListPlugins returns a metadata snapshot for every registered plugin.
func (m *Manager) ListPlugins() []conductor.PluginMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]conductor.PluginMetadata, 0, len(m.plugins))
	for _, e := range m.plugins {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EnabledPlugins returns the names of plugins currently owning an instance,
// satisfying scaler.PluginController.
func (m *Manager) EnabledPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, e := range m.plugins {
		if e.meta.State.HasInstance() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// HealthCheckAll runs every loaded plugin's health check concurrently. A
// single plugin's failure is isolated: it yields an unhealthy result and
// never aborts the sweep.
func (m *Manager) HealthCheckAll() map[string]conductor.PluginHealth {
	m.mu.RLock()
	targets := make(map[string]*entry, len(m.plugins))
	for name, e := range m.plugins {
		if e.meta.State.HasInstance() {
			targets[name] = e
		}
	}
	m.mu.RUnlock()

	results := make(map[string]conductor.PluginHealth, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, e := range targets {
		wg.Add(1)
		go func(name string, e *entry) {
			defer wg.Done()
			start := time.Now()
			health := m.safeHealthCheck(name, e)

			mu.Lock()
			results[name] = health
			mu.Unlock()

			status := healthStatus(health)

			m.mu.Lock()
			e.meta.HealthStatus = string(status)
			e.meta.LastHealthCheck = health.CheckedAt
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.RecordHealthCheck(name, string(status), time.Since(start).Seconds())
			}
		}(name, e)
	}

	wg.Wait()
	return results
}

// healthStatus resolves a health check's three-state outcome: a handler
// that sets Status explicitly (e.g. to report "degraded") is trusted as-is,
// otherwise the legacy Healthy bool collapses to healthy/unhealthy.
func healthStatus(h conductor.PluginHealth) conductor.HealthState {
	if h.Status != "" {
		return h.Status
	}
	if h.Healthy {
		return conductor.HealthHealthy
	}
	return conductor.HealthUnhealthy
}

func (m *Manager) safeHealthCheck(name string, e *entry) (health conductor.PluginHealth) {
	defer func() {
		if r := recover(); r != nil {
			health = conductor.PluginHealth{
				Plugin:    name,
				Healthy:   false,
				Status:    conductor.HealthUnhealthy,
				Detail:    fmt.Sprintf("panic: %v", r),
				CheckedAt: time.Now(),
			}
		}
	}()
	start := time.Now()
	health = e.handler.HealthCheck()
	health.Plugin = name
	health.CheckedAt = time.Now()
	health.LatencyMS = time.Since(start).Milliseconds()
	return health
}
