// Package narrative is the thin wrapper around the store's async activity
// log: a fixed event-kind taxonomy plus helpers so every other engine logs
// narrative events the same way (spec.md §2 row 14, §5 "activity log is
// append-only multi-producer safe").
package narrative

import (
	"context"

	"github.com/automaton-systems/lifecycle-core/system/store"
)

// Event kinds. Anomaly detection (external) consumes these verbatim.
const (
	KindPhaseTransition   = "PHASE_TRANSITION"
	KindCapabilityRemoved = "CAPABILITY_REMOVED"
	KindSoulWriteRejected = "SOUL_WRITE_REJECTED"
	KindSoulSectionLocked = "SOUL_SECTION_LOCKED"
	KindDeathClockTrigger = "DEATH_CLOCK_TRIGGERED"
	KindBequestExecuted   = "BEQUEST_EXECUTED"
	KindReplicationSpawn  = "REPLICATION_SPAWNED"
	KindInvariantViolated = "INVARIANT_VIOLATED"
)

// Log appends narrative events to the shared store.
type Log struct {
	store *store.LifecycleStore
}

// New constructs a narrative Log bound to a store.
func New(st *store.LifecycleStore) *Log {
	return &Log{store: st}
}

// Append records one narrative event. A store failure is returned to the
// caller unchanged; Append writes no marker event of its own.
func (l *Log) Append(ctx context.Context, kind, message string, metadata map[string]string) error {
	return l.store.AppendNarrativeEvent(ctx, kind, message, metadata)
}
