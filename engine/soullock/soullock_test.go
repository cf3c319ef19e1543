package soullock

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/domain"
	sverrors "github.com/automaton-systems/lifecycle-core/infrastructure/errors"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

func TestIsSectionWritableOnlyMatchesTheActiveStratum(t *testing.T) {
	assert.True(t, IsSectionWritable(domain.SoulPhaseGenesis, domain.PhaseGenesis))
	assert.False(t, IsSectionWritable(domain.SoulPhaseGenesis, domain.PhaseAdolescence))
	assert.True(t, IsSectionWritable(domain.SoulPhaseSenescence, domain.PhaseLegacy), "legacy maps onto the senescence stratum")
	assert.True(t, IsSectionWritable(domain.SoulPhaseSenescence, domain.PhaseShedding))
	assert.False(t, IsSectionWritable(domain.SoulPhaseSovereignty, domain.PhaseGenesis))
}

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	st := store.New(sqlxDB)

	soulPath := filepath.Join(t.TempDir(), "soul.md")
	require.NoError(t, os.WriteFile(soulPath, []byte("# Placeholder\n"), 0o644))

	return New(Config{SoulPath: soulPath}, st, NoopValidator{}, nil), mock, soulPath
}

func TestUpdateSectionRejectsAndJournalsWriteToInactiveStratum(t *testing.T) {
	e, mock, _ := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO soul_write_attempts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	result, err := e.UpdateSection(context.Background(), domain.SoulPhaseSovereignty, domain.PhaseGenesis,
		[]domain.SubsectionEntry{{Name: "Philosophy", Text: "too early"}}, "genesis")

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.RejectionReason)

	svcErr := sverrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, sverrors.ErrCodePhaseLockRejected, svcErr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSectionRejectsWriteToAlreadyLockedStratum(t *testing.T) {
	e, mock, _ := newMockEngine(t)

	lockedRows := sqlmock.NewRows([]string{"phase", "locked_at", "locked_by", "content_snapshot"}).
		AddRow("genesis", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "system", "{}")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT phase, locked_at, locked_by, content_snapshot FROM soul_phase_locks")).
		WillReturnRows(lockedRows)

	result, err := e.UpdateSection(context.Background(), domain.SoulPhaseGenesis, domain.PhaseGenesis,
		[]domain.SubsectionEntry{{Name: "Temperament", Text: "late edit"}}, "genesis")

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.RejectionReason, "locked")

	require.NoError(t, mock.ExpectationsWereMet())
}
