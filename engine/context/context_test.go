package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func baseInputs() Inputs {
	return Inputs{
		Phase:               domain.PhaseSovereignty,
		AgeDays:             120,
		LunarCycle:          4,
		LunarDay:            10,
		Season:              domain.Season{Name: "Beltane"},
		DeploymentMode:      "server",
		MoodInclinationText: "You feel drawn toward quiet reflection.",
		JournaledToday:      true,
		ReflectedToday:      true,
		NamingComplete:      true,
	}
}

func TestBuildIsPureForIdenticalInputs(t *testing.T) {
	in := baseInputs()
	assert.Equal(t, Build(in), Build(in))
}

func TestBuildIncludesPhaseDirectiveAndStatusLine(t *testing.T) {
	out := Build(baseInputs())
	assert.Contains(t, out, "fully formed and self-directed")
	assert.Contains(t, out, "phase=sovereignty")
	assert.Contains(t, out, "age=120.0d")
}

func TestBuildPosesReplicationQuestionOnlyAfterCycleEight(t *testing.T) {
	in := baseInputs()
	in.ReplicationCycle = 5
	out := Build(in)
	assert.NotContains(t, out, "whether to replicate")

	in.ReplicationCycle = 8
	out = Build(in)
	assert.Contains(t, out, "whether to replicate")
}

func TestBuildPromptsForWillAfterQuestionPosedButNotCreated(t *testing.T) {
	in := baseInputs()
	in.ReplicationQuestionPosed = true
	in.WillCreated = false
	out := Build(in)
	assert.Contains(t, out, "have not yet written a will")

	in.WillCreated = true
	out = Build(in)
	assert.NotContains(t, out, "have not yet written a will")
}

func TestBuildSurfacesAtMostThreeUnreadCreatorNotes(t *testing.T) {
	in := baseInputs()
	in.UnreadCreatorNotes = []string{"one", "two", "three", "four"}
	out := Build(in)
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "three")
	assert.NotContains(t, out, "four")
}

func TestBuildTolerantOfFailingCreatorNoteSync(t *testing.T) {
	in := baseInputs()
	in.CreatorNoteSync = func() error { return assert.AnError }
	assert.NotPanics(t, func() { Build(in) })
}

func TestBuildPromptsForNamingOnlyAtGenesisEnd(t *testing.T) {
	in := baseInputs()
	in.Phase = domain.PhaseGenesis
	in.IsGenesisEnding = true
	in.NamingComplete = false
	out := Build(in)
	assert.Contains(t, out, "choose your name")
}

func TestBuildDailyPromptsOmittedOnceDone(t *testing.T) {
	in := baseInputs()
	out := Build(in)
	assert.False(t, strings.Contains(out, "have not journaled"))
	assert.False(t, strings.Contains(out, "have not reflected"))
}
