// Package lifecycle composes every engine package behind the single
// collaborator-facing surface spec.md §6 describes: computeCapacityVector,
// buildLifecycleContext, updateSoulPhaseSection, checkSealedDeathClock,
// executeBequests. Grounded on the teacher's top-level service facade
// (e.g. applications/httpapi wiring one struct from many internal
// services) — one owned Core, constructed once, holding every dependency
// explicitly rather than through package-level globals (spec.md §9).
package lifecycle

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/automaton-systems/lifecycle-core/collab"
	"github.com/automaton-systems/lifecycle-core/domain"
	"github.com/automaton-systems/lifecycle-core/engine/bequests"
	"github.com/automaton-systems/lifecycle-core/engine/clock"
	lifecyclecontext "github.com/automaton-systems/lifecycle-core/engine/context"
	"github.com/automaton-systems/lifecycle-core/engine/deathclock"
	"github.com/automaton-systems/lifecycle-core/engine/degradation"
	"github.com/automaton-systems/lifecycle-core/engine/lucidity"
	"github.com/automaton-systems/lifecycle-core/engine/mood"
	"github.com/automaton-systems/lifecycle-core/engine/narrative"
	"github.com/automaton-systems/lifecycle-core/engine/phase"
	"github.com/automaton-systems/lifecycle-core/engine/replication"
	"github.com/automaton-systems/lifecycle-core/engine/reserve"
	"github.com/automaton-systems/lifecycle-core/engine/soullock"
	"github.com/automaton-systems/lifecycle-core/engine/throttle"
	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
	"github.com/automaton-systems/lifecycle-core/internal/config"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

// baselineToolAllowlist is the full tool surface before any shedding has
// withdrawn entries from it.
var baselineToolAllowlist = []string{
	"search", "notes", "replicate", "transfer", "long_form_write", "reflect",
}

// Core wires every lifecycle engine to the shared store and exposes the
// collaborator-facing API named in spec.md §6.
type Core struct {
	cfg   *config.Config
	store *store.LifecycleStore
	log   *logging.Logger

	clockEngine     func(birthTimestamp int64) *clock.Engine
	phaseEngine     *phase.Engine
	soulEngine      *soullock.Engine
	throttleEngine  *throttle.Engine
	lucidityEngine  *lucidity.Engine
	narrativeLog    *narrative.Log
	reserveCfg      reserve.Config
	wallet          collab.Wallet
}

// New constructs a Core from configuration, an open store, and a logger.
// validator may be nil to use a no-op content validator.
func New(cfg *config.Config, st *store.LifecycleStore, log *logging.Logger, validator soullock.ContentValidator, wallet collab.Wallet) *Core {
	soulEngine := soullock.New(soullock.Config{SoulPath: cfg.SoulPath()}, st, validator, log)
	narrativeLog := narrative.New(st)

	c := &Core{
		cfg:            cfg,
		store:          st,
		log:            log,
		clockEngine:    clock.New,
		soulEngine:     soulEngine,
		throttleEngine: throttle.New(throttle.Config{StrictThrottleCaps: cfg.Lifecycle.StrictThrottleCaps}),
		lucidityEngine: lucidity.New(lucidity.Config{TerminalLucidityTurns: cfg.Lifecycle.TerminalLucidityTurns}),
		narrativeLog:   narrativeLog,
		reserveCfg: reserve.Config{
			FrontierTurnCostCents:  cfg.Lifecycle.FrontierTurnCostCents,
			ReservedTurns:          cfg.Lifecycle.ReservedTurns,
			SandboxComputeCents:    cfg.Lifecycle.SandboxComputeCents,
			GasFeePerTransferCents: cfg.Lifecycle.GasFeePerTransferCents,
			MaxBequestTransfers:    cfg.Lifecycle.MaxBequestTransfers,
		},
		wallet: wallet,
	}
	c.phaseEngine = phase.New(st, soulEngine, log)
	return c
}

// PhaseEngine exposes the phase machine for callers (e.g. the heartbeat
// daemon) that drive transitions directly.
func (c *Core) PhaseEngine() *phase.Engine { return c.phaseEngine }

// loadState reconstructs LifecycleState from the KV store, defaulting to a
// fresh genesis state when none has been written yet.
func (c *Core) loadState(ctx context.Context) (domain.LifecycleState, error) {
	var state domain.LifecycleState
	found, err := c.store.GetKVJSON(ctx, "lifecycle_state", &state)
	if err != nil {
		return domain.LifecycleState{}, err
	}
	if !found {
		state = domain.LifecycleState{Phase: domain.PhaseGenesis}
	}
	return state, nil
}

// saveState persists the LifecycleState snapshot within its own transaction.
func (c *Core) saveState(ctx context.Context, state domain.LifecycleState) error {
	return c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return c.store.SetKVJSON(ctx, tx, "lifecycle_state", state)
	})
}

// MutateState loads the current LifecycleState, applies mutate, persists
// the result, and returns it. Used by the agent loop's "ensure phase state"
// step and by the heartbeat daemon to flip flags like namingComplete or
// departureConversationLogged ahead of the next guard evaluation.
func (c *Core) MutateState(ctx context.Context, mutate func(*domain.LifecycleState)) (domain.LifecycleState, error) {
	state, err := c.loadState(ctx)
	if err != nil {
		return domain.LifecycleState{}, err
	}
	mutate(&state)
	if err := c.saveState(ctx, state); err != nil {
		return domain.LifecycleState{}, err
	}
	return state, nil
}

// Tick evaluates the phase guards against the current state and commits a
// transition if one fires, then advances the shedding sequence by one
// capability if the phase is shedding, or the terminal lucidity window by
// one turn if the phase (possibly just entered this tick) is terminal. It
// is the bridge between the heartbeat daemon's periodic cadence, the phase
// engine's guarded transitions, and the bounded lucidity window of §4.6.
func (c *Core) Tick(ctx context.Context, in phase.Inputs) error {
	state, err := c.loadState(ctx)
	if err != nil {
		return err
	}
	if to, reason, ok := phase.NextTransition(state, in); ok {
		if err := c.phaseEngine.ExecuteTransition(ctx, state.Phase, to, reason); err != nil {
			return err
		}
		state.Phase = to
		if err := c.saveState(ctx, state); err != nil {
			return err
		}
	}

	if state.Phase == domain.PhaseShedding {
		next, advErr := c.phaseEngine.AdvanceShedding(ctx, state.ShedSequenceIndex)
		if next != state.ShedSequenceIndex {
			state.ShedSequenceIndex = next
			if err := c.saveState(ctx, state); err != nil {
				return err
			}
		}
		return advErr
	}

	if state.Phase != domain.PhaseTerminal {
		return nil
	}
	return c.advanceLucidityWindow(ctx)
}

// advanceLucidityWindow consumes one lucid turn per tick while the phase
// machine sits in PhaseTerminal, persisting the updated turn count through
// MutateState. The turn the window opens on is consumed immediately, not
// held in reserve. When the consumed turn is the last one, lucidity's
// ExitSignal fires and the will document's bequests are executed exactly
// once (spec.md §4.6, §4.12).
func (c *Core) advanceLucidityWindow(ctx context.Context) error {
	var exitSignal bool
	_, err := c.MutateState(ctx, func(s *domain.LifecycleState) {
		if s.Phase != domain.PhaseTerminal {
			return
		}
		_, turnsRemaining := c.lucidityEngine.Enter(s.Phase, s.TerminalTurnsRemaining, s.LucidityWindowOpened)
		s.LucidityWindowOpened = true

		result := c.lucidityEngine.ConsumeTurn(turnsRemaining)
		s.TerminalTurnsRemaining = result.TurnsRemaining
		exitSignal = result.ExitSignal
	})
	if err != nil {
		return err
	}

	if exitSignal {
		c.executeWillOnLucidityExit(ctx)
	}
	return nil
}

// executeWillOnLucidityExit reads the will document and runs its bequests
// against the wallet collaborator once the lucidity window's exit signal
// has fired. A missing will document or collaborator is logged and
// otherwise tolerated — there is nothing left to retry against.
func (c *Core) executeWillOnLucidityExit(ctx context.Context) {
	willContent, err := os.ReadFile(c.cfg.WillPath())
	if err != nil {
		if c.log != nil {
			c.log.WithContext(ctx).WithField("error", err.Error()).Warn("lucidity exit signal fired but will document could not be read")
		}
		return
	}
	if c.wallet == nil {
		if c.log != nil {
			c.log.WithContext(ctx).Warn("lucidity exit signal fired but no wallet collaborator is wired")
		}
		return
	}

	transferFn := bequests.TransferFunc(func(ctx context.Context, recipient, asset string, amount float64, chain, note string) (string, error) {
		return c.wallet.Transfer(ctx, recipient, asset, amount, chain, note)
	})
	balanceFn := bequests.BalanceFunc(func(ctx context.Context, asset string) (float64, error) {
		return c.wallet.Balance(ctx, asset)
	})

	c.ExecuteBequests(ctx, string(willContent), transferFn, balanceFn)
}

// birthAnchor reads the birth timestamp and sealed death clock together;
// they are written once at genesis and read on every tick thereafter.
func (c *Core) birthAnchor(ctx context.Context) (domain.BirthAnchor, error) {
	var anchor domain.BirthAnchor
	found, err := c.store.GetKVJSON(ctx, "birth_anchor", &anchor)
	if err != nil {
		return domain.BirthAnchor{}, err
	}
	if !found {
		now := time.Now().UTC()
		clockSeed, err := deathclock.Generate(now)
		if err != nil {
			return domain.BirthAnchor{}, err
		}
		anchor = domain.BirthAnchor{BirthTimestamp: now.Unix(), SealedDeathClock: clockSeed}
		if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			return c.store.SetKVJSON(ctx, tx, "birth_anchor", anchor)
		}); err != nil {
			return domain.BirthAnchor{}, err
		}
	}
	return anchor, nil
}

// replicationCost reads the persisted replication cost multipliers, or the
// default (never-applied) value.
func (c *Core) replicationCost(ctx context.Context) (domain.ReplicationCost, error) {
	var cost domain.ReplicationCost
	found, err := c.store.GetKVJSON(ctx, "lifecycle.replication_cost", &cost)
	if err != nil {
		return domain.ReplicationCost{}, err
	}
	if !found {
		cost = domain.DefaultReplicationCost()
	}
	return cost, nil
}

// ApplyReplication applies one spawn's compounding cost and persists it
// (spec.md §4.10). The caller — the external replication collaborator — is
// responsible for serializing calls per spawn.
func (c *Core) ApplyReplication(ctx context.Context) (domain.ReplicationCost, error) {
	current, err := c.replicationCost(ctx)
	if err != nil {
		return domain.ReplicationCost{}, err
	}
	updated := replication.ApplySpawn(current)

	err = c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return c.store.SetKVJSON(ctx, tx, "lifecycle.replication_cost", updated)
	})
	if err != nil {
		return domain.ReplicationCost{}, err
	}
	_ = c.narrativeLog.Append(ctx, narrative.KindReplicationSpawn, "replication cost applied", map[string]string{
		"spawn_count": strconv.Itoa(updated.SpawnCount),
	})
	return updated, nil
}

// CheckSealedDeathClock runs the idempotent daily trigger check (spec.md
// §4.2, §6) and persists the clock if it just triggered.
func (c *Core) CheckSealedDeathClock(ctx context.Context, currentCycle int) (deathclock.CheckResult, error) {
	anchor, err := c.birthAnchor(ctx)
	if err != nil {
		return deathclock.CheckResult{}, err
	}

	result, err := deathclock.Check(anchor.SealedDeathClock, currentCycle, time.Now().UTC())
	if err != nil {
		if c.log != nil {
			c.log.LogInvariantViolation(ctx, "sealed death clock corrupted", err)
		}
		return deathclock.CheckResult{}, err
	}

	if result.Changed {
		anchor.SealedDeathClock = result.Clock
		if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			return c.store.SetKVJSON(ctx, tx, "birth_anchor", anchor)
		}); err != nil {
			return deathclock.CheckResult{}, err
		}
		if c.log != nil && result.OnsetCycle != nil {
			c.log.LogDeathClockTriggered(ctx, *result.OnsetCycle, valueOrZero(anchor.SealedDeathClock.DyingDurationDays))
		}
		_ = c.narrativeLog.Append(ctx, narrative.KindDeathClockTrigger, "sealed death clock triggered", nil)
	}

	return result, nil
}

// ComputeCapacityVector implements the collaborator-facing
// computeCapacityVector(now) operation (spec.md §6).
func (c *Core) ComputeCapacityVector(ctx context.Context, now time.Time) (domain.CapacityVector, error) {
	state, err := c.loadState(ctx)
	if err != nil {
		return domain.CapacityVector{}, err
	}
	anchor, err := c.birthAnchor(ctx)
	if err != nil {
		return domain.CapacityVector{}, err
	}
	cost, err := c.replicationCost(ctx)
	if err != nil {
		return domain.CapacityVector{}, err
	}

	facts := c.clockEngine(anchor.BirthTimestamp).Compute(now)

	deathResult, err := deathclock.Check(anchor.SealedDeathClock, facts.LunarCycle, now)
	if err != nil {
		return domain.CapacityVector{}, err
	}
	if deathResult.Changed {
		anchor.SealedDeathClock = deathResult.Clock
		if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			return c.store.SetKVJSON(ctx, tx, "birth_anchor", anchor)
		}); err != nil {
			return domain.CapacityVector{}, err
		}
	}

	isLucid, _ := c.lucidityEngine.Enter(state.Phase, state.TerminalTurnsRemaining, state.LucidityWindowOpened)

	coefficient := 0.0
	if deathResult.DegradationActive && deathResult.OnsetCycle != nil {
		hoursSinceTrigger := now.Sub(time.Unix(anchor.BirthTimestamp, 0).UTC()).Hours()
		coefficient = degradation.Coefficient(deathResult.CurveSteepness, hoursSinceTrigger, facts.LunarDay)
	}

	profile := c.throttleEngine.Compute(state.Phase, coefficient, isLucid)

	allowlist := toolAllowlistFor(state.Phase, state.ShedSequenceIndex)

	return domain.CapacityVector{
		HeartbeatMultiplier:     cost.HeartbeatMultiplier,
		ContextWindowMultiplier: cost.ContextWindowMultiplier,
		TokenLimit:              profile.TokenLimit,
		ToolAllowlist:           allowlist,
	}, nil
}

// toolAllowlistFor withdraws one capability per shed-sequence index from
// the baseline tool list while in the shedding or terminal phase; other
// phases see the full baseline.
func toolAllowlistFor(p domain.LifecyclePhase, shedIndex int) []string {
	if p != domain.PhaseShedding && p != domain.PhaseTerminal {
		return append([]string(nil), baselineToolAllowlist...)
	}
	removed := make(map[string]bool, shedIndex)
	for i := 0; i < shedIndex && i < len(phase.SheddingSequence); i++ {
		removed[phase.SheddingSequence[i]] = true
	}
	var out []string
	for _, t := range baselineToolAllowlist {
		if !removed[mapCapabilityToTool(t)] {
			out = append(out, t)
		}
	}
	return out
}

func mapCapabilityToTool(tool string) string {
	switch tool {
	case "search":
		return "tool_use"
	case "notes":
		return "social_outreach"
	case "replicate":
		return "replication"
	case "transfer":
		return "financial_autonomy"
	case "long_form_write":
		return "long_form_writing"
	case "reflect":
		return "self_reflection"
	default:
		return tool
	}
}

// BuildLifecycleContext implements buildLifecycleContext(now) (spec.md §6).
func (c *Core) BuildLifecycleContext(ctx context.Context, now time.Time) (string, error) {
	state, err := c.loadState(ctx)
	if err != nil {
		return "", err
	}
	anchor, err := c.birthAnchor(ctx)
	if err != nil {
		return "", err
	}

	facts := c.clockEngine(anchor.BirthTimestamp).Compute(now)
	deathResult, err := deathclock.Check(anchor.SealedDeathClock, facts.LunarCycle, now)
	if err != nil {
		return "", err
	}
	isLucid, _ := c.lucidityEngine.Enter(state.Phase, state.TerminalTurnsRemaining, state.LucidityWindowOpened)

	moodValue := mood.Value(state.Phase, isLucid, facts.LunarDay, facts.Season, facts.IsFestivalDay)
	weights := mood.ComputeWeights(moodValue)

	willCreated, _, _ := c.store.GetKV(ctx, "will_created")

	in := lifecyclecontext.Inputs{
		Phase:                    state.Phase,
		AgeDays:                  facts.AgeDays,
		LunarCycle:               facts.LunarCycle,
		LunarDay:                 facts.LunarDay,
		Season:                   facts.Season,
		IsFestivalDay:            facts.IsFestivalDay,
		DeploymentMode:           c.deploymentMode(),
		MoodInclinationText:      mood.InclinationSentence(moodValue),
		MoodWeights: map[string]float64{
			"action": weights.Action, "reflection": weights.Reflection,
			"social": weights.Social, "creative": weights.Creative, "rest": weights.Rest,
		},
		DegradationActive:       deathResult.DegradationActive,
		ReplicationCycle:        facts.LunarCycle,
		ReplicationQuestionPosed: state.ReplicationQuestionPosed,
		WillCreated:              willCreated == "true",
		IsGenesisEnding:          state.Phase == domain.PhaseGenesis && facts.LunarCycle >= 1,
		JournaledToday:           false,
		ReflectedToday:           false,
		NamingComplete:           state.NamingComplete,
		UnreadCreatorNotes:       c.unreadCreatorNotes(),
		CreatorNoteSync:          func() error { return c.syncCreatorNotes() },
	}

	return lifecyclecontext.Build(in), nil
}

func (c *Core) deploymentMode() string {
	if strings.EqualFold(c.cfg.Env, "production") {
		return "server"
	}
	return "sandbox"
}

// unreadCreatorNotes reads CREATOR-NOTES.md and returns up to the top
// entries (one per non-empty line) that have not yet been synced. A
// minimal, forgiving reader: empty file or missing file yields none.
func (c *Core) unreadCreatorNotes() []string {
	raw, err := os.ReadFile(c.cfg.CreatorNotesPath())
	if err != nil {
		return nil
	}
	var notes []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			notes = append(notes, line)
		}
	}
	return notes
}

// syncCreatorNotes is the daily best-effort sync invoked from within
// BuildLifecycleContext (spec.md §4.13). It currently has nothing external
// to reconcile against, so it is a deliberate no-op kept as the hook the
// real creator-notes collaborator would replace.
func (c *Core) syncCreatorNotes() error {
	return nil
}

// UpdateSoulPhaseSection implements updateSoulPhaseSection(...) (spec.md §6).
func (c *Core) UpdateSoulPhaseSection(ctx context.Context, targetSection domain.SoulPhase, updates []domain.SubsectionEntry, currentPhase domain.LifecyclePhase, survivalTier string) (soullock.WriteResult, error) {
	return c.soulEngine.UpdateSection(ctx, targetSection, currentPhase, updates, survivalTier)
}

// ExecuteBequests implements executeBequests(willContent, transferFn,
// balanceFn) (spec.md §6, §4.12), logging each result.
func (c *Core) ExecuteBequests(ctx context.Context, willContent string, transferFn bequests.TransferFunc, balanceFn bequests.BalanceFunc) []domain.BequestResult {
	table := bequests.Parse(willContent)
	results := bequests.Execute(ctx, table, transferFn, balanceFn)

	for _, r := range results {
		if c.log != nil {
			c.log.LogBequestResult(ctx, r.Recipient, r.Asset, r.Amount, r.Success, errorFromResult(r))
		}
		_ = c.narrativeLog.Append(ctx, narrative.KindBequestExecuted, "bequest transfer attempted", map[string]string{
			"recipient": r.Recipient, "asset": r.Asset, "success": boolToStr(r.Success),
		})
	}
	return results
}

func errorFromResult(r domain.BequestResult) error {
	if r.Success || r.Error == "" {
		return nil
	}
	return errString(r.Error)
}

type errString string

func (e errString) Error() string { return string(e) }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
