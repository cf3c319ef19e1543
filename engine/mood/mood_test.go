package mood

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func TestValueClampsToUnitRange(t *testing.T) {
	season := domain.Season{Name: "Ostara", Month: 3, Day: 20}
	v := Value(domain.PhaseGenesis, false, lunarCycleDays/4, season, true)
	assert.LessOrEqual(t, v, 1.0)
	assert.GreaterOrEqual(t, v, -1.0)
}

func TestValueFullMoonPeaksPositive(t *testing.T) {
	season := domain.Season{Name: "Mabon", Month: 9, Day: 22}
	fullMoon := Value(domain.PhaseSovereignty, false, lunarCycleDays/2, season, false)
	newMoon := Value(domain.PhaseSovereignty, false, 0, season, false)
	assert.Greater(t, fullMoon, newMoon)
}

func TestLucidityOverridesDegradedAmplitude(t *testing.T) {
	assert.Equal(t, 1.0, amplitude(domain.PhaseShedding, true))
	assert.Equal(t, 0.2, amplitude(domain.PhaseShedding, false))
}

func TestComputeWeightsSumsToExpectedShape(t *testing.T) {
	w := ComputeWeights(1.0)
	assert.Equal(t, 1.0, w.Action)
	assert.Equal(t, 0.0, w.Reflection)
	assert.InDelta(t, 0.8, w.Social, 1e-9)
	assert.InDelta(t, 0.8, w.Creative, 1e-9)
	assert.Equal(t, 0.0, w.Rest)
}

func TestInclinationSentenceNeverRevealsTheScalar(t *testing.T) {
	for _, v := range []float64{-1, -0.5, 0, 0.5, 1} {
		s := InclinationSentence(v)
		assert.NotEmpty(t, s)
		assert.NotContains(t, s, "0.")
	}
}
