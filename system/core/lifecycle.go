// Package core sequences the daemon's own startup and shutdown: the
// heartbeat scheduler and the status HTTP server each register as a
// ServiceModule, and LifecycleManager starts them in dependency order and
// tears them down in reverse (spec.md §9 "the daemon itself has a small
// lifecycle, distinct from the agent's"). Grounded on the teacher's module
// registry / health monitor / dependency manager trio, generalized from an
// arbitrary-service registry down to the two modules this daemon actually
// runs.
package core

import (
	"context"
	"fmt"
	"log"
	"time"
)

// LifecycleManager starts and stops the daemon's two ServiceModules —
// heartbeat and httpserver — and keeps a HealthMonitor snapshot current so
// /healthz can report real per-module state instead of a static "ok".
type LifecycleManager struct {
	registry *Registry
	deps     *DependencyManager
	health   *HealthMonitor
	log      *log.Logger
}

// NewLifecycleManager binds a LifecycleManager to the daemon's module
// registry, dependency resolver, and health monitor.
func NewLifecycleManager(registry *Registry, deps *DependencyManager, health *HealthMonitor, logger *log.Logger) *LifecycleManager {
	if logger == nil {
		logger = log.Default()
	}
	return &LifecycleManager{
		registry: registry,
		deps:     deps,
		health:   health,
		log:      logger,
	}
}

// Start brings up heartbeat and httpserver (or whichever modules are
// registered) in dependency order, rolling back anything already started
// if a later module fails. Neither of the daemon's two modules currently
// declares a dependency on the other, so in practice this runs them in
// registration order — but the topological pass keeps the sequencing
// correct if a third module is added later that does depend on one of
// them.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	names := lm.registry.Modules()

	if err := lm.deps.Verify(names); err != nil {
		return err
	}

	reordered, err := lm.deps.ResolveOrder(names)
	if err != nil {
		return err
	}

	modules := lm.registry.ModulesByNames(reordered)

	started := make([]ServiceModule, 0, len(modules))
	for _, mod := range modules {
		if ctx.Err() != nil {
			lm.stopReverse(ctx, started)
			return ctx.Err()
		}

		name := mod.Name()
		domain := mod.Domain()

		lm.health.MarkStarting(name, domain)

		startNow := time.Now()
		if err := mod.Start(ctx); err != nil {
			lm.health.MarkFailed(name, domain, err.Error(), time.Since(startNow).Nanoseconds())
			lm.stopReverse(ctx, started)
			return fmt.Errorf("start %s: %w", name, err)
		}

		started = append(started, mod)
		lm.health.MarkStarted(name, domain, time.Since(startNow).Nanoseconds())
	}

	return nil
}

// Stop tears down the status HTTP server before the heartbeat scheduler —
// reverse of Start's order — so in-flight /lifecycle/state requests aren't
// cut off mid-tick by a heartbeat that has already stopped ticking.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	names := lm.registry.Modules()
	if ordered, err := lm.deps.ResolveOrder(names); err == nil {
		names = ordered
	}
	modules := lm.registry.ModulesByNames(names)

	for i := len(modules) - 1; i >= 0; i-- {
		mod := modules[i]
		name := mod.Name()
		domain := mod.Domain()

		stopNow := time.Now()
		if err := mod.Stop(ctx); err != nil {
			// Log and continue shutdown so one module's stop failure
			// doesn't leak the other's resources (the cron scheduler,
			// the listening socket).
			lm.log.Printf("stop %s: %v", name, err)
			lm.health.MarkStopError(name, domain, err.Error(), time.Since(stopNow).Nanoseconds())
		} else {
			lm.health.MarkStopped(name, domain, time.Since(stopNow).Nanoseconds())

			if setter, ok := mod.(ReadySetter); ok {
				setter.SetReady(ReadyStatusNotReady, "")
			}
		}
	}

	return nil
}

// stopReverse unwinds a partially-started module set after Start fails
// partway through, so the heartbeat ticker or HTTP listener from an
// earlier module in the sequence doesn't outlive the daemon's failed boot.
func (lm *LifecycleManager) stopReverse(ctx context.Context, mods []ServiceModule) {
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		name := mod.Name()
		domain := mod.Domain()

		status := StatusStopped
		errStr := ""

		if err := mod.Stop(ctx); err != nil {
			status = StatusStopError
			errStr = err.Error()
			lm.log.Printf("stop %s: %v", name, err)
		}

		now := time.Now().UTC()
		lm.health.SetHealth(name, ModuleHealth{
			Name:        name,
			Domain:      domain,
			Status:      status,
			Error:       errStr,
			ReadyStatus: ReadyStatusNotReady,
			StoppedAt:   &now,
		})

		if setter, ok := mod.(ReadySetter); ok {
			setter.SetReady(ReadyStatusNotReady, errStr)
		}
	}
}

// MarkReady flips readiness for heartbeat and httpserver (or the named
// subset) to status, called once by main() right after Start returns so
// /healthz reports ready as soon as both modules are actually serving.
func (lm *LifecycleManager) MarkReady(status, errMsg string, names ...string) {
	if status == "" {
		status = ReadyStatusReady
	}

	if len(names) == 0 {
		names = lm.registry.Modules()
	}

	var mods []ServiceModule
	for _, name := range names {
		if name == "" {
			continue
		}
		if mod := lm.registry.Lookup(name); mod != nil {
			mods = append(mods, mod)
		}
	}

	lm.health.MarkReady(status, errMsg, mods)
}

// Snapshot returns the last recorded health of heartbeat and httpserver,
// keyed by module name, for the status HTTP server's /healthz handler.
func (lm *LifecycleManager) Snapshot() map[string]ModuleHealth {
	return lm.health.Snapshot()
}

// ProbeReadiness re-evaluates readiness for every registered module
// against its declared dependencies and, for modules implementing
// ReadyChecker, their own check. Neither heartbeat nor httpserver
// currently implements ReadyChecker, so today this only re-derives
// readiness from dependency state, but it's the hook a future module
// (e.g. a database-backed readiness probe) would plug into.
func (lm *LifecycleManager) ProbeReadiness(ctx context.Context) {
	names := lm.registry.Modules()
	modules := lm.registry.ModulesByNames(names)

	depsReadyFunc := func(name string) (bool, []string) {
		return lm.deps.DepsReadyWithReasons(name, lm.health)
	}

	for _, mod := range modules {
		prevReady := lm.health.GetReadyStatus(mod.Name())
		prevReadyErr := lm.health.GetReadyError(mod.Name())

		ok, reasons := depsReadyFunc(mod.Name())
		if !ok {
			newErr := "waiting for dependencies: " + joinStrings(reasons, "; ")
			if prevReady != ReadyStatusNotReady || prevReadyErr != newErr {
				lm.log.Printf("module %s waiting for dependencies: %s", mod.Name(), joinStrings(reasons, "; "))
			}
		}
	}

	lm.health.ProbeReadiness(ctx, modules, depsReadyFunc)
}

// joinStrings joins strings with a separator, avoiding a strings.Join
// import for this one small use.
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for i := 1; i < len(strs); i++ {
		result += sep + strs[i]
	}
	return result
}
