// Package lucidity implements the bounded restoration window entered on
// reaching the terminal phase (spec.md §4.6): a fixed number of turns
// during which the sovereignty throttle profile and lifecycle reserve are
// restored before a final exit signal permits bequests execution.
package lucidity

import "github.com/automaton-systems/lifecycle-core/domain"

// Config carries the bounded window length.
type Config struct {
	TerminalLucidityTurns int
}

// Engine tracks the lucidity window's remaining turns.
type Engine struct {
	cfg Config
}

// New constructs a lucidity engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Enter computes the lucidity state for a tick. If the lifecycle phase is
// not terminal, lucidity never applies. If it is terminal and
// terminalTurnsRemaining has not yet been initialized (zero with no prior
// window), the window opens at its configured length.
func (e *Engine) Enter(phase domain.LifecyclePhase, terminalTurnsRemaining int, windowOpened bool) (isLucid bool, turnsRemaining int) {
	if phase != domain.PhaseTerminal {
		return false, terminalTurnsRemaining
	}
	if !windowOpened {
		return true, e.cfg.TerminalLucidityTurns
	}
	return terminalTurnsRemaining > 0, terminalTurnsRemaining
}

// Result is the outcome of consuming one lucid turn.
type Result struct {
	TurnsRemaining int
	ExitSignal     bool // true once the final lucid turn has been consumed
}

// ConsumeTurn decrements the remaining lucid turn count. When it reaches
// zero, the post-lucidity degraded profile resumes; ExitSignal fires
// exactly once, on the turn that brings the count to zero, allowing the
// caller to trigger bequests execution (spec.md §4.6).
func (e *Engine) ConsumeTurn(turnsRemaining int) Result {
	if turnsRemaining <= 0 {
		return Result{TurnsRemaining: 0}
	}
	remaining := turnsRemaining - 1
	return Result{TurnsRemaining: remaining, ExitSignal: remaining == 0}
}
