package lucidity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func TestEnterNeverLucidOutsideTerminalPhase(t *testing.T) {
	e := New(Config{TerminalLucidityTurns: 5})
	lucid, remaining := e.Enter(domain.PhaseSenescence, 0, false)
	assert.False(t, lucid)
	assert.Equal(t, 0, remaining)
}

func TestEnterOpensWindowAtConfiguredLength(t *testing.T) {
	e := New(Config{TerminalLucidityTurns: 5})
	lucid, remaining := e.Enter(domain.PhaseTerminal, 0, false)
	assert.True(t, lucid)
	assert.Equal(t, 5, remaining)
}

func TestEnterClosesOnceTurnsExhausted(t *testing.T) {
	e := New(Config{TerminalLucidityTurns: 5})
	lucid, remaining := e.Enter(domain.PhaseTerminal, 0, true)
	assert.False(t, lucid)
	assert.Equal(t, 0, remaining)
}

func TestConsumeTurnFiresExitSignalExactlyOnce(t *testing.T) {
	e := New(Config{TerminalLucidityTurns: 2})
	r1 := e.ConsumeTurn(2)
	assert.Equal(t, 1, r1.TurnsRemaining)
	assert.False(t, r1.ExitSignal)

	r2 := e.ConsumeTurn(r1.TurnsRemaining)
	assert.Equal(t, 0, r2.TurnsRemaining)
	assert.True(t, r2.ExitSignal)

	r3 := e.ConsumeTurn(r2.TurnsRemaining)
	assert.Equal(t, 0, r3.TurnsRemaining)
	assert.False(t, r3.ExitSignal, "exit signal fires once, not on every subsequent call at zero")
}
