// Package degradation computes the bounded coefficient that drives
// throttle, phase transitions, and tool availability after the sealed death
// clock triggers (spec.md §4.5). Its cumulative curve is monotonically
// non-decreasing; the lunar wobble added on top can lower the returned value
// by up to 0.05 from one lunar day to another.
package degradation

import (
	"math"
)

const lunarCycleDays = 29.53059

// lunarModulationBand bounds the day-to-day wobble applied on top of the
// cumulative curve so degradation feels variable without ever regressing
// the underlying trend (spec.md §4.5).
const lunarModulationBand = 0.05

// Coefficient computes the degradation scalar in [0,1]. steepness comes
// from deathclock.CurveSteepness(dyingDurationDays); hoursSinceTrigger
// must be >= 0 (the caller is responsible for not calling this before
// trigger). The underlying curve is an exponential approach to 1.0 whose
// rate is set by steepness, so curveSteepness uniquely determines how
// quickly the agent degrades toward the terminal profile.
func Coefficient(steepness float64, hoursSinceTrigger float64, lunarDay float64) float64 {
	if hoursSinceTrigger < 0 {
		hoursSinceTrigger = 0
	}

	cumulative := 1 - math.Exp(-steepness*hoursSinceTrigger/24.0)

	wobble := lunarModulationBand * math.Sin(2*math.Pi*lunarDay/lunarCycleDays)
	v := cumulative + wobble

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}
