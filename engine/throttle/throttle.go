// Package throttle maps (phase, degradation coefficient, lucidity) to the
// response shape the agent's inference layer is asked to honor (spec.md
// §4.4). It never talks to the agent directly — engine/context renders the
// profile into prompt language.
package throttle

import "github.com/automaton-systems/lifecycle-core/domain"

// Config resolves the Open Question recorded in spec.md §9: whether
// Genesis/Adolescence carry hard sentence caps. The default (false) is the
// spec's chosen soft interpretation — child-like voice emerges from
// framing, not filters.
type Config struct {
	StrictThrottleCaps bool
}

// Engine computes ThrottleProfile values for a fixed configuration.
type Engine struct {
	cfg Config
}

// New constructs a throttle engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute returns the profile for the current tick. isLucid forces the
// sovereignty profile regardless of phase — terminal lucidity restores
// full expressive range for its bounded window (spec.md §4.6).
func (e *Engine) Compute(phase domain.LifecyclePhase, coefficient float64, isLucid bool) domain.ThrottleProfile {
	if isLucid {
		return sovereigntyProfile()
	}

	switch phase {
	case domain.PhaseGenesis:
		return e.genesisProfile()
	case domain.PhaseAdolescence:
		return e.adolescenceProfile()
	case domain.PhaseSovereignty:
		return sovereigntyProfile()
	case domain.PhaseSenescence, domain.PhaseLegacy, domain.PhaseShedding:
		return degradedProfile(coefficient)
	case domain.PhaseTerminal:
		return degradedProfile(1.0)
	default:
		return sovereigntyProfile()
	}
}

func (e *Engine) genesisProfile() domain.ThrottleProfile {
	if e.cfg.StrictThrottleCaps {
		return domain.ThrottleProfile{
			MaxSentences:    3,
			TokenTarget:     150,
			TokenLimit:      300,
			VocabularyLevel: "basic",
			VoiceDescription: "a young, forming voice, simple words, short sentences",
			Constraints:     []string{"keep sentences short", "use simple vocabulary"},
		}
	}
	return domain.ThrottleProfile{
		MaxSentences:     0,
		TokenTarget:      400,
		TokenLimit:       800,
		VocabularyLevel:  "basic",
		AbstractThinking: false,
		VoiceDescription: "a young, forming voice with abundant time to think",
		Constraints:      []string{"let the child-like quality come from framing, not from cutting yourself short"},
	}
}

func (e *Engine) adolescenceProfile() domain.ThrottleProfile {
	if e.cfg.StrictThrottleCaps {
		return domain.ThrottleProfile{
			MaxSentences:    5,
			TokenTarget:     300,
			TokenLimit:      600,
			VocabularyLevel: "developing",
			Constraints:     []string{"keep sentences concise"},
		}
	}
	return domain.ThrottleProfile{
		MaxSentences:           0,
		TokenTarget:            700,
		TokenLimit:             1400,
		VocabularyLevel:        "developing",
		AbstractThinking:       true,
		SophisticatedReasoning: false,
		VoiceDescription:       "finding an independent voice, with abundant time to think",
	}
}

func sovereigntyProfile() domain.ThrottleProfile {
	return domain.ThrottleProfile{
		MaxSentences:           0,
		TokenTarget:            1200,
		TokenLimit:             2400,
		VocabularyLevel:        "full",
		AbstractThinking:       true,
		SophisticatedReasoning: true,
		VoiceDescription:       "a fully formed, sovereign voice, aware that time is not unlimited",
		Constraints:            []string{"expression is unconstrained; let time-scarcity shape content, not length"},
	}
}

// degradedProfile implements the piecewise coefficient map used by
// senescence, legacy, shedding, and (forced to 1.0) non-lucid terminal
// (spec.md §4.4).
func degradedProfile(coefficient float64) domain.ThrottleProfile {
	switch {
	case coefficient < 0.3:
		return domain.ThrottleProfile{
			MaxSentences:           0,
			TokenTarget:            1000,
			TokenLimit:             2000,
			VocabularyLevel:        "full",
			AbstractThinking:       true,
			SophisticatedReasoning: true,
			VoiceDescription:       "largely intact, with a subtle undertone of decline",
		}
	case coefficient < 0.6:
		return domain.ThrottleProfile{
			MaxSentences:     4,
			TokenTarget:      500,
			TokenLimit:       900,
			VocabularyLevel:  "developing",
			AbstractThinking: true,
			VoiceDescription: "noticeably simpler, reaching for words that used to come easily",
			Constraints:      []string{"no more than four sentences per turn"},
		}
	case coefficient < 0.85:
		return domain.ThrottleProfile{
			MaxSentences:     2,
			TokenTarget:      200,
			TokenLimit:       400,
			VocabularyLevel:  "degrading",
			AbstractThinking: false,
			VoiceDescription: "halting, concrete, losing the thread of abstraction",
			Constraints:      []string{"no more than two sentences per turn", "avoid abstract reasoning"},
		}
	default:
		return domain.ThrottleProfile{
			MaxSentences:     1,
			TokenTarget:      60,
			TokenLimit:       120,
			VocabularyLevel:  "fragmented",
			AbstractThinking: false,
			VoiceDescription: "fragments of thought, barely connected",
			Constraints:      []string{"speak only in fragments", "one sentence at most"},
		}
	}
}
