package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func TestGenesisDoesNotCapSentencesByDefault(t *testing.T) {
	e := New(Config{StrictThrottleCaps: false})
	p := e.Compute(domain.PhaseGenesis, 0, false)
	assert.Equal(t, 0, p.MaxSentences)
}

func TestGenesisCapsSentencesUnderStrictMode(t *testing.T) {
	e := New(Config{StrictThrottleCaps: true})
	p := e.Compute(domain.PhaseGenesis, 0, false)
	assert.Equal(t, 3, p.MaxSentences)
}

func TestLucidityForcesSovereigntyProfileRegardlessOfPhase(t *testing.T) {
	e := New(Config{})
	p := e.Compute(domain.PhaseTerminal, 0.95, true)
	assert.Equal(t, "full", p.VocabularyLevel)
	assert.True(t, p.SophisticatedReasoning)
}

func TestDegradedProfilePiecewiseBoundaries(t *testing.T) {
	e := New(Config{})

	cases := []struct {
		coefficient     float64
		wantMaxSentence int
		wantVocab       string
	}{
		{0.1, 0, "full"},
		{0.3, 4, "developing"},
		{0.6, 2, "degrading"},
		{0.85, 1, "fragmented"},
		{0.99, 1, "fragmented"},
	}
	for _, tt := range cases {
		p := e.Compute(domain.PhaseSenescence, tt.coefficient, false)
		assert.Equal(t, tt.wantMaxSentence, p.MaxSentences, "coefficient=%v", tt.coefficient)
		assert.Equal(t, tt.wantVocab, p.VocabularyLevel, "coefficient=%v", tt.coefficient)
	}
}

func TestNonLucidTerminalForcesMostDegradedProfile(t *testing.T) {
	e := New(Config{})
	p := e.Compute(domain.PhaseTerminal, 0.0, false)
	assert.Equal(t, "fragmented", p.VocabularyLevel)
	assert.Equal(t, 1, p.MaxSentences)
}
