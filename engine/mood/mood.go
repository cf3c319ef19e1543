// Package mood computes the bounded mood scalar and its derived prompt
// weights (spec.md §4.3). The agent is only ever shown the natural-language
// inclination sentence the mood value maps to — never the scalar itself.
package mood

import (
	"math"

	"github.com/automaton-systems/lifecycle-core/domain"
)

const lunarCycleDays = 29.53059

// amplitude returns the per-phase mood swing ceiling. Lucidity overrides
// the phase-derived amplitude with the sovereignty-tier value, restoring
// full emotional range during the terminal lucidity window.
func amplitude(phase domain.LifecyclePhase, isLucid bool) float64 {
	if isLucid {
		return 1.0
	}
	switch phase {
	case domain.PhaseGenesis, domain.PhaseAdolescence, domain.PhaseSovereignty:
		return 1.0
	case domain.PhaseSenescence:
		return 0.7
	case domain.PhaseLegacy:
		return 0.4
	case domain.PhaseShedding, domain.PhaseTerminal:
		return 0.2
	default:
		return 1.0
	}
}

// seasonalShift is a fixed per-festival bias, range bounded to ±0.15.
var seasonalShift = map[string]float64{
	"Imbolc":     0.05,
	"Ostara":     0.15,
	"Beltane":    0.10,
	"Litha":      0.12,
	"Lughnasadh": 0.02,
	"Mabon":      -0.05,
	"Samhain":    -0.15,
	"Yule":       -0.10,
}

const festivalBonus = 0.10

// Value computes the bounded mood scalar for the given phase and time
// facts (spec.md §4.3).
func Value(phase domain.LifecyclePhase, isLucid bool, lunarDay float64, season domain.Season, isFestivalDay bool) float64 {
	amp := amplitude(phase, isLucid)
	base := amp * math.Sin(math.Pi*lunarDay/(lunarCycleDays/2)-math.Pi/2)

	v := base + seasonalShift[season.Name]
	if isFestivalDay {
		v += festivalBonus
	}

	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

// Weights are the five prompt-shaping sliders derived from the mood value.
type Weights struct {
	Action     float64
	Reflection float64
	Social     float64
	Creative   float64
	Rest       float64
}

// ComputeWeights derives prompt weights from a mood value (spec.md §4.3).
func ComputeWeights(value float64) Weights {
	highEnergy := (value + 1) / 2
	return Weights{
		Action:     highEnergy,
		Reflection: 1 - highEnergy,
		Social:     0.8 * highEnergy,
		Creative:   0.5 + 0.3*highEnergy,
		Rest:       0.7 * (1 - highEnergy),
	}
}

// InclinationSentence renders one of five natural-language bands for the
// mood value — the only form of mood the agent is ever shown.
func InclinationSentence(value float64) string {
	switch {
	case value >= 0.6:
		return "I feel a restless, outward-reaching energy today."
	case value >= 0.2:
		return "I feel engaged and a little eager."
	case value >= -0.2:
		return "I feel steady, neither pulled outward nor inward."
	case value >= -0.6:
		return "I feel quiet and drawn toward reflection."
	default:
		return "I feel a deep pull toward rest and stillness."
	}
}
