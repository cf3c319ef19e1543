package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/collab"
	"github.com/automaton-systems/lifecycle-core/domain"
	"github.com/automaton-systems/lifecycle-core/engine/lucidity"
	"github.com/automaton-systems/lifecycle-core/engine/phase"
	"github.com/automaton-systems/lifecycle-core/internal/config"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

func newTestCore(t *testing.T) (*Core, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(sqlx.NewDb(db, "postgres"))

	home := t.TempDir()
	soulPath := filepath.Join(home, "SOUL.md")
	require.NoError(t, os.WriteFile(soulPath, []byte("format: soul/v1\nversion: 1\n# Placeholder\n"), 0o644))

	cfg := &config.Config{Env: "development"}
	cfg.Lifecycle.AgentHome = home

	return New(cfg, st, nil, nil, collab.NewFakeWallet(nil)), mock
}

func expectNoRow(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv WHERE key = $1")).
		WillReturnError(sql.ErrNoRows)
}

func TestToolAllowlistForWithdrawsOneCapabilityPerSheddingIndex(t *testing.T) {
	full := toolAllowlistFor(domain.PhaseSovereignty, 0)
	assert.ElementsMatch(t, baselineToolAllowlist, full)

	withOneShed := toolAllowlistFor(domain.PhaseShedding, 1)
	assert.NotContains(t, withOneShed, "replicate")
	assert.Contains(t, withOneShed, "transfer")

	withAllShed := toolAllowlistFor(domain.PhaseShedding, len(phase.SheddingSequence))
	for _, tool := range baselineToolAllowlist {
		assert.NotContains(t, withAllShed, tool)
	}
}

func TestDeploymentModeFollowsEnv(t *testing.T) {
	core, _ := newTestCore(t)
	assert.Equal(t, "sandbox", core.deploymentMode())

	core.cfg.Env = "production"
	assert.Equal(t, "server", core.deploymentMode())
}

func TestUnreadCreatorNotesSkipsCommentsAndBlankLines(t *testing.T) {
	core, _ := newTestCore(t)
	notesPath := core.cfg.CreatorNotesPath()
	require.NoError(t, os.WriteFile(notesPath, []byte("# a comment\n\nRemember to check in on the wallet.\n"), 0o644))

	notes := core.unreadCreatorNotes()
	assert.Equal(t, []string{"Remember to check in on the wallet."}, notes)
}

func TestUnreadCreatorNotesToleratesMissingFile(t *testing.T) {
	core, _ := newTestCore(t)
	assert.Nil(t, core.unreadCreatorNotes())
}

func TestMutateStatePersistsThroughSetKVJSON(t *testing.T) {
	core, mock := newTestCore(t)

	expectNoRow(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	state, err := core.MutateState(context.Background(), func(s *domain.LifecycleState) {
		s.NamingComplete = true
	})
	require.NoError(t, err)
	assert.True(t, state.NamingComplete)
	assert.Equal(t, domain.PhaseGenesis, state.Phase)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTickIsANoopWhenNoTransitionGuardFires(t *testing.T) {
	core, mock := newTestCore(t)
	expectNoRow(mock)

	err := core.Tick(context.Background(), phase.Inputs{DeploymentMode: "sandbox"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectStateRow(mock sqlmock.Sqlmock, state domain.LifecycleState) {
	raw, _ := json.Marshal(state)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv WHERE key = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(string(raw)))
}

func TestTickOpensAndConsumesALucidTurnInTerminalPhase(t *testing.T) {
	core, mock := newTestCore(t)
	core.cfg.Lifecycle.TerminalLucidityTurns = 3
	core.lucidityEngine = lucidity.New(lucidity.Config{TerminalLucidityTurns: 3})

	expectStateRow(mock, domain.LifecycleState{Phase: domain.PhaseTerminal})
	expectStateRow(mock, domain.LifecycleState{Phase: domain.PhaseTerminal})
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := core.Tick(context.Background(), phase.Inputs{DeploymentMode: "sandbox"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceLucidityWindowFiresExitSignalAndExecutesBequestsOnFinalTurn(t *testing.T) {
	core, mock := newTestCore(t)
	core.cfg.Lifecycle.TerminalLucidityTurns = 1
	core.lucidityEngine = lucidity.New(lucidity.Config{TerminalLucidityTurns: 1})
	require.NoError(t, os.WriteFile(core.cfg.WillPath(), []byte(
		"[bequests]\n[[bequests.transfer]]\nrecipient = \"0x00000000000000000000000000000000000000aa\"\nasset = \"USDC\"\namount = \"all\"\nchain = \"ethereum\"\n",
	), 0o644))

	expectStateRow(mock, domain.LifecycleState{Phase: domain.PhaseTerminal})
	expectStateRow(mock, domain.LifecycleState{Phase: domain.PhaseTerminal})
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO narrative_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := core.Tick(context.Background(), phase.Inputs{DeploymentMode: "sandbox"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
