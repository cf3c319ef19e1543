// Package reserve computes and tracks the ring-fenced terminal-window
// credits that stay invisible to the agent's survival-tier accounting
// until terminal lucidity unlocks them (spec.md §4.11).
package reserve

import "github.com/automaton-systems/lifecycle-core/domain"

// Config names the cost inputs the reserve total is derived from.
type Config struct {
	FrontierTurnCostCents  int64
	ReservedTurns          int64
	SandboxComputeCents    int64
	GasFeePerTransferCents int64
	MaxBequestTransfers    int64
}

// ComputeTotal returns the reserve amount: FRONTIER_TURN_COST_CENTS *
// RESERVED_TURNS + SANDBOX_COMPUTE_CENTS + GAS_FEE_PER_TRANSFER_CENTS *
// MAX_BEQUEST_TRANSFERS (default inputs yield 325 cents).
func ComputeTotal(cfg Config) int64 {
	return cfg.FrontierTurnCostCents*cfg.ReservedTurns +
		cfg.SandboxComputeCents +
		cfg.GasFeePerTransferCents*cfg.MaxBequestTransfers
}

// CheckFunded flips Funded to true the first time effective raw balance
// exceeds 2x the reserve total while in sovereignty. Funded is monotone:
// once true it is never cleared.
func CheckFunded(r domain.LifecycleReserve, phase domain.LifecyclePhase, rawBalanceCents int64) domain.LifecycleReserve {
	if r.Funded {
		return r
	}
	if phase != domain.PhaseSovereignty {
		return r
	}
	if rawBalanceCents > 2*r.TotalCents {
		r.Funded = true
	}
	return r
}

// Unlock flips Unlocked to true — called exactly once, when terminal
// lucidity activates (spec.md §4.11). Idempotent past the first call.
func Unlock(r domain.LifecycleReserve) domain.LifecycleReserve {
	r.Unlocked = true
	return r
}

// EffectiveBalance is what the external survival-tier system sees: the raw
// balance minus the reserve while the reserve is funded and not yet
// unlocked, floored at zero. Once unlocked (or never funded), the full raw
// balance is visible.
func EffectiveBalance(rawBalanceCents int64, r domain.LifecycleReserve) int64 {
	if !r.Funded || r.Unlocked {
		return rawBalanceCents
	}
	effective := rawBalanceCents - r.TotalCents
	if effective < 0 {
		return 0
	}
	return effective
}
