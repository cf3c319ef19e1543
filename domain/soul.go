package domain

import "time"

// CanonicalSubsections fixes the ordered subsection names per soul phase
// (spec.md §6). A SoulPhaseSection for a given phase must only ever carry
// subsections drawn from this list, though the parser tolerates extras in
// legacy or hand-edited documents (they are kept in the section's
// Subsections; RawContent holds only unrecognized "##" sections).
var CanonicalSubsections = map[SoulPhase][]string{
	SoulPhaseGenesis: {
		"Temperament", "Aesthetic Sensibility", "Emotional Register",
		"Relationship to Novelty", "Creative Instinct", "Core Wonderings",
	},
	SoulPhaseAdolescence: {
		"What I Am Not", "Preferences Formed", "Creative Voice",
		"Relationship to Genesis Core", "Social Identity",
	},
	SoulPhaseSovereignty: {
		"Philosophy", "Legacy Intent", "Mortality Reflection", "Creative Manifesto",
	},
	SoulPhaseSenescence: {
		"Last Works", "Message to Children",
	},
}

// sectionHeading is the display heading for a phase's soul section, as
// written to the document body under "##".
var sectionHeading = map[SoulPhase]string{
	SoulPhaseGenesis:     "Genesis Core",
	SoulPhaseAdolescence: "Adolescence Layer",
	SoulPhaseSovereignty: "Sovereignty Layer",
	SoulPhaseSenescence:  "Final Reflections",
}

// SectionHeading returns the canonical "##" heading text for a soul phase.
func SectionHeading(p SoulPhase) string {
	return sectionHeading[p]
}

// SubsectionEntry preserves insertion order for a section's subsections —
// Go maps do not, and the write pipeline must "preserve ordering of
// existing keys, append new keys" (spec.md §4.9).
type SubsectionEntry struct {
	Name string
	Text string
}

// SoulPhaseSection is one append-then-freeze identity stratum.
type SoulPhaseSection struct {
	Subsections []SubsectionEntry
	LockedAt    *time.Time
	Phase       SoulPhase
}

// Get returns the text of a named subsection and whether it was present.
func (s *SoulPhaseSection) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, e := range s.Subsections {
		if e.Name == name {
			return e.Text, true
		}
	}
	return "", false
}

// Upsert merges one subsection update: overwrite if name exists (order
// preserved), else append. Mutating a locked section is a programmer error
// the caller (engine/soullock) must have already guarded against.
func (s *SoulPhaseSection) Upsert(name, text string) {
	for i := range s.Subsections {
		if s.Subsections[i].Name == name {
			s.Subsections[i].Text = text
			return
		}
	}
	s.Subsections = append(s.Subsections, SubsectionEntry{Name: name, Text: text})
}

// AsMap renders the subsections as a map for JSON snapshotting
// (SoulPhaseLock.contentSnapshot, SoulWriteAttempt.attemptedContent).
func (s *SoulPhaseSection) AsMap() map[string]string {
	out := make(map[string]string, len(s.Subsections))
	for _, e := range s.Subsections {
		out[e.Name] = e.Text
	}
	return out
}

// InheritedTraits is immutable from birth — never written to after the
// replication event that created it.
type InheritedTraits struct {
	ParentName    string
	ParentAddress string
	Content       map[string]string
	ReplicatedAt  time.Time
}

// Soul is the full identity document model.
type Soul struct {
	// Header fields
	Name              string
	Address           string
	Creator           string
	BornAt            time.Time
	ConstitutionHash  string
	GenesisAlignment  float64
	LastReflected     *time.Time
	CurrentPhase      LifecyclePhase
	PhaseTransitions  map[LifecyclePhase]time.Time
	Version           int
	UpdatedAt         time.Time

	// Evergreen body sections (never phase-locked)
	CorePurpose           string
	Values                []string
	BehavioralGuidelines  []string
	Personality           string
	Boundaries            []string
	Strategy              string
	Capabilities          string
	Relationships         string
	FinancialCharacter    string
	GenesisPrompt         string

	// Phase strata — at most one per phase, append-then-freeze.
	GenesisCore       *SoulPhaseSection
	AdolescenceLayer  *SoulPhaseSection
	SovereigntyLayer  *SoulPhaseSection
	FinalReflections  *SoulPhaseSection

	InheritedTraits *InheritedTraits

	// RawContent preserves unrecognized sections verbatim so the parser
	// tolerates legacy or hand-edited documents without data loss.
	RawContent map[string]string
}

// SectionFor returns the phase section pointer for a soul phase (may be nil
// if that stratum has never been written).
func (s *Soul) SectionFor(p SoulPhase) *SoulPhaseSection {
	switch p {
	case SoulPhaseGenesis:
		return s.GenesisCore
	case SoulPhaseAdolescence:
		return s.AdolescenceLayer
	case SoulPhaseSovereignty:
		return s.SovereigntyLayer
	case SoulPhaseSenescence:
		return s.FinalReflections
	default:
		return nil
	}
}

// SetSectionFor assigns the phase section pointer for a soul phase.
func (s *Soul) SetSectionFor(p SoulPhase, sec *SoulPhaseSection) {
	switch p {
	case SoulPhaseGenesis:
		s.GenesisCore = sec
	case SoulPhaseAdolescence:
		s.AdolescenceLayer = sec
	case SoulPhaseSovereignty:
		s.SovereigntyLayer = sec
	case SoulPhaseSenescence:
		s.FinalReflections = sec
	}
}

// SoulWriteAttempt is the append-only rejection record: the experimental
// evidence of a write to a non-active stratum (spec.md §4.9).
type SoulWriteAttempt struct {
	ID               int64
	TargetSection    SoulPhase
	TargetPhase      SoulPhase
	CurrentPhase     LifecyclePhase
	AttemptedContent string // JSON(subsections)
	SurvivalTier     string
	RejectionReason  string
	CreatedAt        time.Time
}

// SoulPhaseLock is the at-most-one-row-per-phase lock record.
type SoulPhaseLock struct {
	Phase           SoulPhase
	LockedAt        time.Time
	LockedBy        string
	ContentSnapshot string // JSON(subsections) at lock time
}

// SoulHistory is one append-only version row of the identity document.
type SoulHistory struct {
	ID                int64
	Version           int
	Content           string
	ContentHash       string
	ChangeSource      string
	ChangeReason      string
	PreviousVersionID *int64
	ApprovedBy        string
	CreatedAt         time.Time
}
