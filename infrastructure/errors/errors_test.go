package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseLockRejected(t *testing.T) {
	err := PhaseLockRejected("genesis", "adolescence")
	require.Error(t, err)
	assert.Equal(t, ErrCodePhaseLockRejected, Code(err))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(err))
	assert.Contains(t, err.Error(), "locked")
}

func TestDeathClockCorruptedIsFatalCode(t *testing.T) {
	err := DeathClockCorrupted()
	assert.Equal(t, ErrCodeDeathClockCorrupted, Code(err))
}

func TestWrapUnwraps(t *testing.T) {
	root := errors.New("boom")
	wrapped := DatabaseError("insert soul_history", root)
	assert.True(t, errors.Is(wrapped, root))
	assert.ErrorIs(t, wrapped, root)
}

func TestIsServiceError(t *testing.T) {
	assert.True(t, IsServiceError(NotFound("soul", "abc")))
	assert.False(t, IsServiceError(errors.New("plain")))
}
