package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvisoryLockIDIsStableAndDeterministic(t *testing.T) {
	a := advisoryLockID("soul:/home/agent/.automaton/SOUL.md")
	b := advisoryLockID("soul:/home/agent/.automaton/SOUL.md")
	c := advisoryLockID("soul:/home/other/.automaton/SOUL.md")

	assert.Equal(t, a, b, "same key must hash to the same lock id")
	assert.NotEqual(t, a, c, "different keys should not collide under fnv64a for these inputs")
}

func TestContentHashIsDeterministicAndSensitiveToInput(t *testing.T) {
	h1 := ContentHash("## Genesis Core\nTemperament: curious")
	h2 := ContentHash("## Genesis Core\nTemperament: curious")
	h3 := ContentHash("## Genesis Core\nTemperament: cautious")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64, "hex-encoded sha256 digest is 64 characters")
}

func TestNullableIDRoundTripsNilAndValue(t *testing.T) {
	var nilID *int64
	v, err := nullableID(nilID).Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	id := int64(42)
	v, err = nullableID(&id).Value()
	assert.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestLockForReturnsSameMutexForSameKey(t *testing.T) {
	s := &LifecycleStore{soulLocks: make(map[string]*sync.Mutex)}
	l1 := s.lockFor("soul:/a")
	l2 := s.lockFor("soul:/a")
	l3 := s.lockFor("soul:/b")

	assert.True(t, l1 == l2, "same key must reuse the same mutex instance")
	assert.False(t, l1 == l3, "different keys must get distinct mutexes")
}
