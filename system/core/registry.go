package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ServiceModule is anything LifecycleManager starts and stops.
type ServiceModule interface {
	Name() string
	Domain() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	DependsOn() []string
}

// ReadyChecker lets a module report readiness beyond simple started/stopped.
type ReadyChecker interface {
	CheckReady(ctx context.Context) (bool, string)
}

// ReadySetter lets LifecycleManager push a readiness transition onto a
// module (e.g. flipping it not-ready as soon as Stop begins).
type ReadySetter interface {
	SetReady(status, reason string)
}

// Readiness states.
const (
	ReadyStatusReady    = "ready"
	ReadyStatusNotReady = "not_ready"
)

// Lifecycle states recorded per module.
const (
	StatusStarting  = "starting"
	StatusStarted   = "started"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
	StatusStopError = "stop_error"
)

// ModuleHealth is one module's last known status, captured for the
// status HTTP server's /healthz and /readyz surfaces.
type ModuleHealth struct {
	Name          string
	Domain        string
	Status        string
	Error         string
	ReadyStatus   string
	ReadyError    string
	StartedAt     *time.Time
	StoppedAt     *time.Time
	DurationNanos int64
}

// Registry holds registered modules in registration order.
type Registry struct {
	mu      sync.Mutex
	order   []string
	modules map[string]ServiceModule
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]ServiceModule)}
}

// Register adds m, preserving first-registration order for same-named
// re-registration (used by tests that swap a module for a fake).
func (r *Registry) Register(m ServiceModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.Name()]; !exists {
		r.order = append(r.order, m.Name())
	}
	r.modules[m.Name()] = m
}

// Modules returns registered module names in registration order.
func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the module registered under name, or nil.
func (r *Registry) Lookup(name string) ServiceModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[name]
}

// ModulesByNames resolves a name slice to modules, skipping unknown names.
func (r *Registry) ModulesByNames(names []string) []ServiceModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServiceModule, 0, len(names))
	for _, n := range names {
		if m, ok := r.modules[n]; ok {
			out = append(out, m)
		}
	}
	return out
}

// DependencyManager verifies and topologically orders module dependencies.
type DependencyManager struct {
	registry *Registry
}

// NewDependencyManager binds a DependencyManager to a Registry.
func NewDependencyManager(r *Registry) *DependencyManager {
	return &DependencyManager{registry: r}
}

// Verify checks that every dependency named by a module in names is
// itself present in names.
func (dm *DependencyManager) Verify(names []string) error {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, n := range names {
		mod := dm.registry.Lookup(n)
		if mod == nil {
			continue
		}
		for _, dep := range mod.DependsOn() {
			if !known[dep] {
				return fmt.Errorf("module %s depends on unregistered module %s", n, dep)
			}
		}
	}
	return nil
}

// ResolveOrder topologically sorts names so each module follows its
// dependencies, using Kahn's algorithm. Ties break by registration order.
func (dm *DependencyManager) ResolveOrder(names []string) ([]string, error) {
	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	position := make(map[string]int, len(names))
	for i, n := range names {
		indegree[n] = 0
		position[n] = i
	}
	for _, n := range names {
		mod := dm.registry.Lookup(n)
		if mod == nil {
			continue
		}
		for _, dep := range mod.DependsOn() {
			if _, ok := indegree[dep]; !ok {
				continue
			}
			indegree[n]++
			dependents[dep] = append(dependents[dep], n)
		}
	}

	var ready []string
	for _, n := range names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	var order []string
	for len(ready) > 0 {
		// Deterministic: always take the earliest-registered ready module.
		bestIdx := 0
		for i, n := range ready {
			if position[n] < position[ready[bestIdx]] {
				bestIdx = i
			}
		}
		next := ready[bestIdx]
		ready = append(ready[:bestIdx], ready[bestIdx+1:]...)
		order = append(order, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(names) {
		return nil, fmt.Errorf("module dependency cycle detected among: %v", names)
	}
	return order, nil
}

// DepsReadyWithReasons reports whether every dependency of name is ready,
// naming the ones that are not.
func (dm *DependencyManager) DepsReadyWithReasons(name string, health *HealthMonitor) (bool, []string) {
	mod := dm.registry.Lookup(name)
	if mod == nil {
		return true, nil
	}
	var reasons []string
	for _, dep := range mod.DependsOn() {
		if health.GetReadyStatus(dep) != ReadyStatusReady {
			reasons = append(reasons, dep)
		}
	}
	return len(reasons) == 0, reasons
}

// HealthMonitor tracks the last known status of every module.
type HealthMonitor struct {
	mu     sync.Mutex
	health map[string]ModuleHealth
}

// NewHealthMonitor constructs an empty HealthMonitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{health: make(map[string]ModuleHealth)}
}

// MarkStarting records that a module's Start has begun.
func (h *HealthMonitor) MarkStarting(name, domain string) {
	now := time.Now().UTC()
	h.SetHealth(name, ModuleHealth{Name: name, Domain: domain, Status: StatusStarting, StartedAt: &now})
}

// MarkStarted records a successful Start.
func (h *HealthMonitor) MarkStarted(name, domain string, durationNanos int64) {
	now := time.Now().UTC()
	h.SetHealth(name, ModuleHealth{
		Name: name, Domain: domain, Status: StatusStarted,
		ReadyStatus: ReadyStatusReady, StartedAt: &now, DurationNanos: durationNanos,
	})
}

// MarkFailed records a Start failure.
func (h *HealthMonitor) MarkFailed(name, domain, errMsg string, durationNanos int64) {
	h.SetHealth(name, ModuleHealth{
		Name: name, Domain: domain, Status: StatusFailed, Error: errMsg,
		ReadyStatus: ReadyStatusNotReady, DurationNanos: durationNanos,
	})
}

// MarkStopped records a clean Stop.
func (h *HealthMonitor) MarkStopped(name, domain string, durationNanos int64) {
	now := time.Now().UTC()
	h.SetHealth(name, ModuleHealth{
		Name: name, Domain: domain, Status: StatusStopped,
		ReadyStatus: ReadyStatusNotReady, StoppedAt: &now, DurationNanos: durationNanos,
	})
}

// MarkStopError records a Stop that returned an error.
func (h *HealthMonitor) MarkStopError(name, domain, errMsg string, durationNanos int64) {
	now := time.Now().UTC()
	h.SetHealth(name, ModuleHealth{
		Name: name, Domain: domain, Status: StatusStopError, Error: errMsg,
		ReadyStatus: ReadyStatusNotReady, StoppedAt: &now, DurationNanos: durationNanos,
	})
}

// SetHealth overwrites the recorded health for name.
func (h *HealthMonitor) SetHealth(name string, health ModuleHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.health == nil {
		h.health = make(map[string]ModuleHealth)
	}
	h.health[name] = health
}

// GetHealth returns the recorded health for name, or the zero value.
func (h *HealthMonitor) GetHealth(name string) ModuleHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health[name]
}

// GetReadyStatus returns the module's last recorded readiness status.
func (h *HealthMonitor) GetReadyStatus(name string) string {
	return h.GetHealth(name).ReadyStatus
}

// GetReadyError returns the module's last recorded readiness error, if any.
func (h *HealthMonitor) GetReadyError(name string) string {
	return h.GetHealth(name).ReadyError
}

// MarkReady sets readiness for the given modules (all modules if mods is
// empty), defaulting to ReadyStatusReady when status is blank.
func (h *HealthMonitor) MarkReady(status, errMsg string, mods []ServiceModule) {
	if status == "" {
		status = ReadyStatusReady
	}
	for _, m := range mods {
		current := h.GetHealth(m.Name())
		current.Name = m.Name()
		current.Domain = m.Domain()
		current.ReadyStatus = status
		current.ReadyError = errMsg
		h.SetHealth(m.Name(), current)
	}
}

// MarkModulesStarted marks every given module started and ready.
func (h *HealthMonitor) MarkModulesStarted(mods []ServiceModule) {
	for _, m := range mods {
		h.MarkStarted(m.Name(), m.Domain(), 0)
	}
}

// MarkModulesStopped marks every given module stopped and not ready.
func (h *HealthMonitor) MarkModulesStopped(mods []ServiceModule) {
	for _, m := range mods {
		h.MarkStopped(m.Name(), m.Domain(), 0)
	}
}

// ProbeReadiness re-evaluates readiness for every module against its
// dependencies and, where the module implements ReadyChecker, its own
// check.
func (h *HealthMonitor) ProbeReadiness(ctx context.Context, modules []ServiceModule, depsReadyFunc func(name string) (bool, []string)) {
	for _, m := range modules {
		depsReady, reasons := depsReadyFunc(m.Name())
		if !depsReady {
			current := h.GetHealth(m.Name())
			current.ReadyStatus = ReadyStatusNotReady
			current.ReadyError = fmt.Sprintf("waiting for dependencies: %v", reasons)
			h.SetHealth(m.Name(), current)
			continue
		}
		if checker, ok := m.(ReadyChecker); ok {
			ready, reason := checker.CheckReady(ctx)
			current := h.GetHealth(m.Name())
			if ready {
				current.ReadyStatus = ReadyStatusReady
				current.ReadyError = ""
			} else {
				current.ReadyStatus = ReadyStatusNotReady
				current.ReadyError = reason
			}
			h.SetHealth(m.Name(), current)
			continue
		}
		current := h.GetHealth(m.Name())
		if current.Status == StatusStarted {
			current.ReadyStatus = ReadyStatusReady
			h.SetHealth(m.Name(), current)
		}
	}
}

// Snapshot returns a copy of every module's recorded health, keyed by name.
func (h *HealthMonitor) Snapshot() map[string]ModuleHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]ModuleHealth, len(h.health))
	for k, v := range h.health {
		out[k] = v
	}
	return out
}
