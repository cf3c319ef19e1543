// Package clock computes birth-anchored age, lunar position, and seasonal
// position from wall-clock time. It is the first stage of every heartbeat
// tick (spec.md §4.1) and holds no state of its own beyond the birth
// timestamp it is constructed with.
package clock

import (
	"math"
	"time"

	"github.com/automaton-systems/lifecycle-core/domain"
)

// LunarCycleDays is the synodic lunar month length used throughout the
// core — the period both lunar day/cycle and the sealed death clock's
// onset window are expressed in.
const LunarCycleDays = 29.53059

// Facts is the snapshot of time-derived state every downstream engine
// consumes.
type Facts struct {
	Now           time.Time
	AgeMs         int64
	AgeDays       float64
	LunarCycle    int
	LunarDay      float64
	Season        domain.Season
	IsFestivalDay bool
	ClockSkewWarn bool
}

// Engine computes Facts for a fixed birth timestamp.
type Engine struct {
	birthTimestamp int64 // unix seconds
}

// New constructs a clock engine anchored to birthTimestamp.
func New(birthTimestamp int64) *Engine {
	return &Engine{birthTimestamp: birthTimestamp}
}

// Compute derives age, lunar position, and seasonal position as of now.
// If now precedes birth, age is clamped to zero and ClockSkewWarn is set —
// the caller logs this once via errors.ClockSkew (spec.md §7).
func (e *Engine) Compute(now time.Time) Facts {
	birth := time.Unix(e.birthTimestamp, 0).UTC()
	now = now.UTC()

	ageSeconds := now.Sub(birth).Seconds()
	skew := false
	if ageSeconds < 0 {
		ageSeconds = 0
		skew = true
	}

	ageDays := ageSeconds / 86400.0
	lunarCycle := int(math.Floor(ageDays / LunarCycleDays))
	lunarDay := math.Mod(ageDays, LunarCycleDays)
	if lunarDay < 0 {
		lunarDay += LunarCycleDays
	}

	season, isFestival := seasonalPosition(now)

	return Facts{
		Now:           now,
		AgeMs:         int64(ageSeconds * 1000),
		AgeDays:       ageDays,
		LunarCycle:    lunarCycle,
		LunarDay:      lunarDay,
		Season:        season,
		IsFestivalDay: isFestival,
		ClockSkewWarn: skew,
	}
}

// seasonalPosition returns the most recently passed festival from the
// Wheel of the Year, wrapping to the previous year's last festival when
// now precedes the current year's first (spec.md §4.1).
func seasonalPosition(now time.Time) (domain.Season, bool) {
	wheel := domain.WheelOfTheYear
	year := now.Year()

	var best domain.Season
	found := false
	for _, s := range wheel {
		candidate := time.Date(year, time.Month(s.Month), s.Day, 0, 0, 0, 0, time.UTC)
		if !candidate.After(now) {
			best = s
			found = true
		}
	}
	if !found {
		// Wrap to the previous year's final festival.
		best = wheel[len(wheel)-1]
	}

	isFestival := now.Month() == time.Month(best.Month) && now.Day() == best.Day
	return best, isFestival
}
