// Package domain holds the pure data types shared across the lifecycle
// engines: phases, soul strata, reserves, and bequests. Nothing in this
// package performs I/O or owns behavior beyond simple predicates — each
// engine package owns the logic that operates on these shapes.
package domain

import "time"

// LifecyclePhase is one of the seven linearly ordered developmental stages.
// Transitions are forward-only; see engine/phase for the guarded machine.
type LifecyclePhase string

const (
	PhaseGenesis     LifecyclePhase = "genesis"
	PhaseAdolescence LifecyclePhase = "adolescence"
	PhaseSovereignty LifecyclePhase = "sovereignty"
	PhaseSenescence  LifecyclePhase = "senescence"
	PhaseLegacy      LifecyclePhase = "legacy"
	PhaseShedding    LifecyclePhase = "shedding"
	PhaseTerminal    LifecyclePhase = "terminal"
)

// phaseOrder fixes the total order used to enforce forward-only transitions.
var phaseOrder = map[LifecyclePhase]int{
	PhaseGenesis:     0,
	PhaseAdolescence: 1,
	PhaseSovereignty: 2,
	PhaseSenescence:  3,
	PhaseLegacy:      4,
	PhaseShedding:    5,
	PhaseTerminal:    6,
}

// Ordinal returns the phase's position in the forward-only sequence, or -1
// if the phase is not recognized.
func (p LifecyclePhase) Ordinal() int {
	if ord, ok := phaseOrder[p]; ok {
		return ord
	}
	return -1
}

// Valid reports whether p is one of the seven recognized phases.
func (p LifecyclePhase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// SoulPhase is one of the four soul strata. legacy, shedding, and terminal
// all map onto senescence — see MapToSoulPhase.
type SoulPhase string

const (
	SoulPhaseGenesis     SoulPhase = "genesis"
	SoulPhaseAdolescence SoulPhase = "adolescence"
	SoulPhaseSovereignty SoulPhase = "sovereignty"
	SoulPhaseSenescence  SoulPhase = "senescence"
)

// MapToSoulPhase implements the many-to-one mapping from the seven
// lifecycle phases to the four soul strata (spec.md §3: SoulPhase).
func MapToSoulPhase(p LifecyclePhase) SoulPhase {
	switch p {
	case PhaseGenesis:
		return SoulPhaseGenesis
	case PhaseAdolescence:
		return SoulPhaseAdolescence
	case PhaseSovereignty:
		return SoulPhaseSovereignty
	case PhaseSenescence, PhaseLegacy, PhaseShedding, PhaseTerminal:
		return SoulPhaseSenescence
	default:
		return SoulPhaseGenesis
	}
}

// LifecycleState is a snapshot reconstructable from the event log plus KV.
type LifecycleState struct {
	Phase                       LifecyclePhase
	LunarCycle                  int
	LunarDay                    float64
	AgeMs                       int64
	Mood                        float64
	Degradation                 float64
	ShedSequenceIndex           int
	NamingComplete              bool
	DepartureConversationLogged bool
	ReplicationQuestionPosed    bool
	ReplicationDecision         string
	WillCreated                 bool
	TerminalTurnsRemaining      int
	LucidityWindowOpened        bool
}

// LifecycleEvent is an append-only record of a phase transition.
type LifecycleEvent struct {
	ID        int64
	Timestamp time.Time
	FromPhase LifecyclePhase
	ToPhase   LifecyclePhase
	Reason    string
	Metadata  map[string]string
}

// Season names one entry of the fixed 8-entry Wheel of the Year.
type Season struct {
	Name  string
	Month int
	Day   int
}

// WheelOfTheYear is the fixed 8-festival calendar used by Clock & Lunar
// (spec.md §4.1) to compute seasonal position, and by Mood Engine (§4.3)
// to compute festival bonus.
var WheelOfTheYear = []Season{
	{Name: "Imbolc", Month: 2, Day: 1},
	{Name: "Ostara", Month: 3, Day: 20},
	{Name: "Beltane", Month: 5, Day: 1},
	{Name: "Litha", Month: 6, Day: 21},
	{Name: "Lughnasadh", Month: 8, Day: 1},
	{Name: "Mabon", Month: 9, Day: 22},
	{Name: "Samhain", Month: 10, Day: 31},
	{Name: "Yule", Month: 12, Day: 21},
}

// CapacityVector is the external collaborator-facing output of
// computeCapacityVector (spec.md §6): the multipliers and allowances that
// shape scheduling cadence, context budget, and tool availability, without
// ever being explained to the agent.
type CapacityVector struct {
	HeartbeatMultiplier     float64
	ContextWindowMultiplier float64
	TokenLimit              int
	ToolAllowlist           []string
}
