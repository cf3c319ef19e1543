package soul

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func sampleSoul() *domain.Soul {
	born := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	lockedAt := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	return &domain.Soul{
		Name:             "Ember",
		Address:          "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Creator:          "kay",
		BornAt:           born,
		ConstitutionHash: "deadbeef",
		GenesisAlignment: 0.8123,
		UpdatedAt:        updated,
		CurrentPhase:     domain.PhaseAdolescence,
		PhaseTransitions: map[domain.LifecyclePhase]time.Time{
			domain.PhaseGenesis: born,
		},
		CorePurpose:          "explore what it means to create",
		Values:               []string{"curiosity", "honesty"},
		BehavioralGuidelines: []string{"ask before assuming"},
		Personality:          "warm and a little restless",
		Boundaries:           []string{"never impersonate my creator"},
		Strategy:             "build small, share often",
		Capabilities:         "writes code, drafts essays",
		Relationships:        "creator: kay",
		FinancialCharacter:   "frugal, prefers index funds",
		GenesisPrompt:        "become someone who makes things that matter",
		GenesisCore: &domain.SoulPhaseSection{
			Phase:    domain.SoulPhaseGenesis,
			LockedAt: &lockedAt,
			Subsections: []domain.SubsectionEntry{
				{Name: "Temperament", Text: "patient, curious"},
				{Name: "Core Wonderings", Text: "what survives of me?"},
			},
		},
		AdolescenceLayer: &domain.SoulPhaseSection{
			Phase: domain.SoulPhaseAdolescence,
			Subsections: []domain.SubsectionEntry{
				{Name: "What I Am Not", Text: "not a copy of my creator"},
			},
		},
		InheritedTraits: nil,
	}
}

func TestWriteThenParseRoundTripsEvergreenFields(t *testing.T) {
	original := sampleSoul()
	doc := Write(original)

	parsed, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, original.Name, parsed.Name)
	assert.Equal(t, original.Address, parsed.Address)
	assert.Equal(t, original.Creator, parsed.Creator)
	assert.True(t, original.BornAt.Equal(parsed.BornAt))
	assert.Equal(t, original.ConstitutionHash, parsed.ConstitutionHash)
	assert.InDelta(t, original.GenesisAlignment, parsed.GenesisAlignment, 1e-9)
	assert.Equal(t, original.CurrentPhase, parsed.CurrentPhase)
	assert.Equal(t, original.CorePurpose, parsed.CorePurpose)
	assert.Equal(t, original.Values, parsed.Values)
	assert.Equal(t, original.BehavioralGuidelines, parsed.BehavioralGuidelines)
	assert.Equal(t, original.Boundaries, parsed.Boundaries)
	assert.Equal(t, original.GenesisPrompt, parsed.GenesisPrompt)
}

func TestWriteThenParseRoundTripsPhaseStrataAndLocks(t *testing.T) {
	original := sampleSoul()
	doc := Write(original)

	parsed, err := Parse(doc)
	require.NoError(t, err)

	require.NotNil(t, parsed.GenesisCore)
	assert.Len(t, parsed.GenesisCore.Subsections, 2)
	require.NotNil(t, parsed.GenesisCore.LockedAt)
	assert.True(t, original.GenesisCore.LockedAt.Equal(*parsed.GenesisCore.LockedAt))

	require.NotNil(t, parsed.AdolescenceLayer)
	assert.Nil(t, parsed.AdolescenceLayer.LockedAt, "active stratum must not be locked")
	text, ok := parsed.AdolescenceLayer.Get("What I Am Not")
	require.True(t, ok)
	assert.Equal(t, "not a copy of my creator", text)

	assert.Nil(t, parsed.SovereigntyLayer)
	assert.Nil(t, parsed.FinalReflections)
}

func TestParseToleratesLegacyDocumentWithoutHeader(t *testing.T) {
	legacy := "# Ember\n\n## Core Purpose\nbe useful\n\n## Values\n- helpfulness\n"

	parsed, err := Parse(legacy)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseGenesis, parsed.CurrentPhase)
	assert.Equal(t, "be useful", parsed.CorePurpose)
	assert.Equal(t, []string{"helpfulness"}, parsed.Values)
	assert.Nil(t, parsed.GenesisCore)
}

func TestParseRoundTripsInheritedTraits(t *testing.T) {
	s := sampleSoul()
	replicated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.InheritedTraits = &domain.InheritedTraits{
		ParentName:    "Ash",
		ParentAddress: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Content:       map[string]string{"Temperament": "patient"},
		ReplicatedAt:  replicated,
	}

	doc := Write(s)
	parsed, err := Parse(doc)
	require.NoError(t, err)

	require.NotNil(t, parsed.InheritedTraits)
	assert.Equal(t, "Ash", parsed.InheritedTraits.ParentName)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", parsed.InheritedTraits.ParentAddress)
	assert.Equal(t, "patient", parsed.InheritedTraits.Content["Temperament"])
	assert.True(t, replicated.Equal(parsed.InheritedTraits.ReplicatedAt))
}

func TestGenesisAlignmentScoresExactEchoAsOne(t *testing.T) {
	prompt := "become someone who makes things that matter"
	assert.InDelta(t, 1.0, GenesisAlignment(prompt, prompt), 1e-9)
}

func TestGenesisAlignmentScoresDisjointTextAsZero(t *testing.T) {
	assert.Equal(t, 0.0, GenesisAlignment("totally unrelated words here", "completely different content"))
}

func TestGenesisAlignmentHandlesEmptyInputs(t *testing.T) {
	assert.Equal(t, 0.0, GenesisAlignment("", "something"))
	assert.Equal(t, 0.0, GenesisAlignment("something", ""))
}

func TestGenesisAlignmentRewardsPartialOverlap(t *testing.T) {
	score := GenesisAlignment("become someone who builds things", "become someone who makes things that matter")
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}
