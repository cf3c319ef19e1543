// Package heartbeat drives the periodic tick that advances the lifecycle:
// recomputing mood and degradation, checking the sealed death clock, and
// persisting state. Grounded on the teacher's automation Scheduler
// (internal/app/services/automation/scheduler.go), generalized from a
// ticker-based poll loop to a robfig/cron/v3 schedule so the interval is
// configurable with standard cron syntax.
package heartbeat

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
)

// TickFunc performs one heartbeat's worth of lifecycle work. Errors are
// logged and swallowed — a single missed tick must not crash the daemon.
type TickFunc func(ctx context.Context) error

// Daemon runs TickFunc on a cron schedule until Stop is called.
type Daemon struct {
	log      *logging.Logger
	schedule string
	tick     TickFunc

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New constructs a heartbeat daemon. schedule is a standard 5-field cron
// expression (e.g. "*/5 * * * *" for every five minutes); tick is invoked
// once per scheduled firing.
func New(schedule string, tick TickFunc, log *logging.Logger) *Daemon {
	return &Daemon{schedule: schedule, tick: tick, log: log}
}

// Start begins the cron schedule. Calling Start on an already-running
// daemon is a no-op, matching the teacher scheduler's idempotent Start.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(d.schedule, func() {
		if err := d.tick(ctx); err != nil {
			d.log.WithContext(ctx).WithField("error", err.Error()).Warn("heartbeat tick failed")
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	d.cron = c
	d.running = true
	d.log.WithContext(ctx).WithField("schedule", d.schedule).Info("heartbeat daemon started")
	return nil
}

// Stop halts the cron schedule and waits for any in-flight tick to finish.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}

	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	d.cron = nil
	d.running = false
	d.log.WithContext(ctx).Info("heartbeat daemon stopped")
	return nil
}

// RunOnce invokes tick immediately, outside the cron schedule.
func (d *Daemon) RunOnce(ctx context.Context) error {
	return d.tick(ctx)
}
