package deathclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/domain"
	"github.com/automaton-systems/lifecycle-core/infrastructure/crypto"
)

func TestGenerateProducesDistinctSaltedHashes(t *testing.T) {
	birth := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := Generate(birth)
	require.NoError(t, err)

	assert.Len(t, c.Salt, 64, "32 random bytes hex-encoded is 64 characters")
	assert.NotEmpty(t, c.DeathDateHash)
	assert.NotEmpty(t, c.DyingDurationHash)
	assert.False(t, c.Triggered)
	assert.Nil(t, c.TriggeredAtCycle)
	assert.Nil(t, c.DyingDurationDays)
}

func TestCheckShortCircuitsBeforeOnsetWindow(t *testing.T) {
	c := domain.SealedDeathClock{Salt: "deadbeef", DeathDateHash: "x", DyingDurationHash: "y"}
	result, err := Check(c, 5, time.Now())
	require.NoError(t, err)
	assert.False(t, result.DegradationActive)
	assert.False(t, result.Changed)
}

func TestCheckIsIdempotentOnceTriggered(t *testing.T) {
	cycle := 14
	days := 4
	c := domain.SealedDeathClock{
		Salt: "deadbeef", DeathDateHash: "x", DyingDurationHash: "y",
		Triggered: true, TriggeredAtCycle: &cycle, DyingDurationDays: &days,
	}
	result, err := Check(c, 20, time.Now())
	require.NoError(t, err)
	assert.True(t, result.DegradationActive)
	assert.Equal(t, 0.4, result.CurveSteepness)
	assert.False(t, result.Changed, "already-triggered clocks are never rewritten")
}

func TestCheckTriggersOnMatchingDate(t *testing.T) {
	salt := "cafebabefeedface"
	today := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	dateStr := today.Format("2006-01-02")

	c := domain.SealedDeathClock{
		Salt:              salt,
		DeathDateHash:     dateHashFor(t, salt, dateStr),
		DyingDurationHash: durationHashFor(t, salt, "5"),
	}

	result, err := Check(c, 14, today)
	require.NoError(t, err)
	assert.True(t, result.DegradationActive)
	assert.True(t, result.Changed)
	require.NotNil(t, result.Clock.DyingDurationDays)
	assert.Equal(t, 5, *result.Clock.DyingDurationDays)
	assert.Equal(t, 0.3, result.CurveSteepness)
	require.NotNil(t, result.Clock.TriggeredAtCycle)
	assert.Equal(t, 14, *result.Clock.TriggeredAtCycle)
}

func TestCheckReturnsCorruptedWhenDurationHashMatchesNoCandidate(t *testing.T) {
	salt := "cafebabefeedface"
	today := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	dateStr := today.Format("2006-01-02")

	c := domain.SealedDeathClock{
		Salt:              salt,
		DeathDateHash:     dateHashFor(t, salt, dateStr),
		DyingDurationHash: "not-a-real-hash-for-any-candidate",
	}

	_, err := Check(c, 14, today)
	require.Error(t, err)
}

func TestVerifyDetectsSingleCharacterTampering(t *testing.T) {
	birth := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := Generate(birth)
	require.NoError(t, err)

	// We don't know the true plaintexts (discarded by design), so fabricate
	// a clock whose plaintexts we do control for this test.
	salt := c.Salt
	date := "2027-03-01"
	duration := 3
	c.DeathDateHash = dateHashFor(t, salt, date)
	c.DyingDurationHash = durationHashFor(t, salt, "3")

	ok := Verify(c, date, duration)
	assert.True(t, ok.DateValid)
	assert.True(t, ok.DurationValid)

	tampered := Verify(c, "2027-03-02", duration)
	assert.False(t, tampered.DateValid)
	assert.True(t, tampered.DurationValid)

	tamperedDuration := Verify(c, date, 4)
	assert.True(t, tamperedDuration.DateValid)
	assert.False(t, tamperedDuration.DurationValid)
}

func dateHashFor(t *testing.T, salt, value string) string {
	t.Helper()
	sub, err := deriveSubSalt(salt, "death-date")
	require.NoError(t, err)
	return crypto.SaltedHash(sub, value)
}

func durationHashFor(t *testing.T, salt, value string) string {
	t.Helper()
	sub, err := deriveSubSalt(salt, "dying-duration")
	require.NoError(t, err)
	return crypto.SaltedHash(sub, value)
}
