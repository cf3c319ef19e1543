package degradation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoefficientIsMonotonicOverTimeIgnoringWobble(t *testing.T) {
	// Sample at lunar-day values where the wobble term is zero (multiples
	// of half the lunar cycle) so the underlying cumulative trend is
	// isolated from the day-to-day modulation.
	early := Coefficient(0.5, 1, 0)
	mid := Coefficient(0.5, 48, 0)
	late := Coefficient(0.5, 240, 0)

	assert.Less(t, early, mid)
	assert.Less(t, mid, late)
	assert.LessOrEqual(t, late, 1.0)
}

func TestCoefficientNeverExceedsUnitBounds(t *testing.T) {
	v := Coefficient(0.8, 100000, lunarCycleDays/4)
	assert.LessOrEqual(t, v, 1.0)
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestCoefficientClampsNegativeElapsedTime(t *testing.T) {
	v := Coefficient(0.5, -10, 0)
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestSteeperCurveDegradesFaster(t *testing.T) {
	shallow := Coefficient(0.15, 48, 0)
	steep := Coefficient(0.8, 48, 0)
	assert.Less(t, shallow, steep)
}
