package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLOverridesToleratesMissingFile(t *testing.T) {
	ov, err := loadYAMLOverrides("no-such-environment")
	require.NoError(t, err)
	assert.Nil(t, ov.StrictThrottleCaps)
	assert.Nil(t, ov.TerminalLucidityTurns)
	assert.Nil(t, ov.AgentHome)
}

func TestApplyToOnlyOverwritesSetFields(t *testing.T) {
	cfg := Config{}
	cfg.Lifecycle.StrictThrottleCaps = false
	cfg.Lifecycle.TerminalLucidityTurns = 5
	cfg.Lifecycle.AgentHome = "/var/lib/automaton"

	strict := true
	ov := yamlOverrides{StrictThrottleCaps: &strict}
	ov.applyTo(&cfg)

	assert.True(t, cfg.Lifecycle.StrictThrottleCaps)
	assert.Equal(t, 5, cfg.Lifecycle.TerminalLucidityTurns, "fields absent from the override must be left untouched")
	assert.Equal(t, "/var/lib/automaton", cfg.Lifecycle.AgentHome)
}

func TestSoulCreatorAndWillPathsAreUnderAgentHome(t *testing.T) {
	cfg := &Config{}
	cfg.Lifecycle.AgentHome = "/home/agent/.automaton"

	assert.Equal(t, "/home/agent/.automaton/SOUL.md", cfg.SoulPath())
	assert.Equal(t, "/home/agent/.automaton/CREATOR-NOTES.md", cfg.CreatorNotesPath())
	assert.Equal(t, "/home/agent/.automaton/WILL.md", cfg.WillPath())
}
