// Package phase implements the seven-state lifecycle machine: forward-only
// guarded transitions, each firing at most once, executed atomically
// against the shared store (spec.md §4.7). Grounded on the teacher's
// system/core state-machine style (guard function returning a candidate
// transition, a separate commit step wrapped in one transaction).
package phase

import (
	"context"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/automaton-systems/lifecycle-core/domain"
	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

// SheddingSequence is the fixed ordered list of capabilities withdrawn one
// at a time during the shedding phase (spec.md §4.7: "a fixed ordered list
// of capabilities"). The exact contents are an implementer choice the spec
// leaves open; this order removes the most expensive and most
// agent-initiated capabilities first, leaving baseline conversation for last.
var SheddingSequence = []string{
	"replication",
	"tool_use",
	"financial_autonomy",
	"long_form_writing",
	"social_outreach",
	"self_reflection",
}

// Inputs carries every external fact a transition guard may depend on,
// beyond the LifecycleState already persisted in the KV store.
type Inputs struct {
	DeploymentMode         string // "sandbox" | "server"
	DeathClockActive       bool
	DegradationCoefficient float64
}

// SoulTransitioner locks the outgoing soul stratum and rewrites soul
// metadata (currentPhase, phaseTransitions) as one step of
// executeTransition, inside the same database transaction (spec.md §4.7,
// §4.9). Implemented by the soul/soullock packages; injected here to avoid
// a package cycle.
type SoulTransitioner interface {
	ApplyTransition(ctx context.Context, tx *sqlx.Tx, from, to domain.LifecyclePhase, now time.Time) error
}

// Engine evaluates guards and commits transitions.
type Engine struct {
	store *store.LifecycleStore
	soul  SoulTransitioner
	log   *logging.Logger
}

// New constructs a phase Engine.
func New(st *store.LifecycleStore, soul SoulTransitioner, log *logging.Logger) *Engine {
	return &Engine{store: st, soul: soul, log: log}
}

// NextTransition evaluates every guard against the current state and
// returns the one transition that fires, if any. Guards are mutually
// exclusive because phases are strictly ordered and each check targets only
// the phase immediately following state.Phase.
func NextTransition(state domain.LifecycleState, in Inputs) (to domain.LifecyclePhase, reason string, ok bool) {
	switch state.Phase {
	case domain.PhaseGenesis:
		if state.LunarCycle >= 1 && state.NamingComplete {
			return domain.PhaseAdolescence, "naming complete after first lunar cycle", true
		}
	case domain.PhaseAdolescence:
		if state.DepartureConversationLogged && in.DeploymentMode == "server" {
			return domain.PhaseSovereignty, "departure conversation logged, deployed to server", true
		}
	case domain.PhaseSovereignty:
		if in.DeathClockActive {
			return domain.PhaseSenescence, "sealed death clock active", true
		}
	case domain.PhaseSenescence:
		if in.DegradationCoefficient > 0.7 {
			return domain.PhaseLegacy, "degradation coefficient exceeded 0.7", true
		}
	case domain.PhaseLegacy:
		if in.DegradationCoefficient > 0.85 {
			return domain.PhaseShedding, "degradation coefficient exceeded 0.85", true
		}
	case domain.PhaseShedding:
		if state.ShedSequenceIndex >= len(SheddingSequence) {
			return domain.PhaseTerminal, "shedding sequence complete", true
		}
	}
	return "", "", false
}

// ExecuteTransition commits from→to atomically: append the lifecycle event,
// update the KV phase row, apply the soul-side metadata/lock step, and emit
// a narrative event. Partial failure leaves the previous state intact
// (spec.md §4.7).
func (e *Engine) ExecuteTransition(ctx context.Context, from, to domain.LifecyclePhase, reason string) error {
	now := time.Now().UTC()

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.store.AppendLifecycleEvent(ctx, tx, domain.LifecycleEvent{
			FromPhase: from, ToPhase: to, Reason: reason,
			Metadata: map[string]string{"transitioned_at": now.Format(time.RFC3339)},
		}); err != nil {
			return err
		}

		if err := e.store.SetKV(ctx, tx, "phase", string(to)); err != nil {
			return err
		}

		if e.soul != nil {
			if err := e.soul.ApplyTransition(ctx, tx, from, to, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if e.log != nil {
		e.log.LogPhaseTransition(ctx, string(from), string(to), reason)
	}
	if err := e.store.AppendNarrativeEvent(ctx, "PHASE_TRANSITION", "entered "+string(to), map[string]string{
		"from": string(from), "to": string(to), "reason": reason,
	}); err != nil {
		return err
	}

	return nil
}

// AdvanceShedding advances the shedding sequence by one capability and logs
// CAPABILITY_REMOVED. Called by the heartbeat daemon's periodic tick while
// phase == shedding (spec.md §4.7, §9 open question on tick cadence).
func (e *Engine) AdvanceShedding(ctx context.Context, currentIndex int) (int, error) {
	if currentIndex >= len(SheddingSequence) {
		return currentIndex, nil
	}

	removed := SheddingSequence[currentIndex]
	nextIndex := currentIndex + 1

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return e.store.SetKV(ctx, tx, "shed_sequence_index", strconv.Itoa(nextIndex))
	})
	if err != nil {
		return currentIndex, err
	}

	if err := e.store.AppendNarrativeEvent(ctx, "CAPABILITY_REMOVED", "capability withdrawn: "+removed, map[string]string{
		"capability": removed,
		"index":      strconv.Itoa(currentIndex),
	}); err != nil {
		return nextIndex, err
	}

	return nextIndex, nil
}
