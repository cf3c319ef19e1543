// Package soullock enforces which soul stratum the agent may write to at
// any given phase, journals rejected writes verbatim, and freezes a
// stratum the moment its phase ends (spec.md §4.9). Grounded on the
// teacher's write-gate-plus-audit-log pattern for guarded mutations.
package soullock

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/automaton-systems/lifecycle-core/domain"
	sverrors "github.com/automaton-systems/lifecycle-core/infrastructure/errors"
	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
	"github.com/automaton-systems/lifecycle-core/engine/soul"
	"github.com/automaton-systems/lifecycle-core/system/store"
)

// ContentValidator checks attempted subsection content for size caps and
// injection patterns. It is an external collaborator (spec.md §4.9: "the
// content validator (size caps and injection patterns; external)") — a
// lenient no-op implementation is provided for tests and local runs.
type ContentValidator interface {
	Validate(updates []domain.SubsectionEntry) []string // returns rejection reasons, empty if valid
}

// NoopValidator accepts every write. Used where no external validator is wired.
type NoopValidator struct{}

// Validate implements ContentValidator by accepting everything.
func (NoopValidator) Validate([]domain.SubsectionEntry) []string { return nil }

// Config points the engine at the on-disk soul document.
type Config struct {
	SoulPath string
}

// Engine is the write gate and lock keeper for the soul document.
type Engine struct {
	cfg       Config
	store     *store.LifecycleStore
	validator ContentValidator
	log       *logging.Logger
}

// New constructs a soullock Engine.
func New(cfg Config, st *store.LifecycleStore, validator ContentValidator, log *logging.Logger) *Engine {
	if validator == nil {
		validator = NoopValidator{}
	}
	return &Engine{cfg: cfg, store: st, validator: validator, log: log}
}

// IsSectionWritable reports whether targetSoulPhase is the active stratum
// for currentLifecyclePhase (spec.md §4.9).
func IsSectionWritable(targetSoulPhase domain.SoulPhase, currentLifecyclePhase domain.LifecyclePhase) bool {
	return targetSoulPhase == domain.MapToSoulPhase(currentLifecyclePhase)
}

// WriteResult reports the outcome of UpdateSection.
type WriteResult struct {
	Success         bool
	RejectionReason string
	NewVersion      int
}

// UpdateSection runs the updateSoulPhaseSection pipeline (spec.md §4.9):
// reject-and-journal if the target stratum isn't active for the current
// phase, else merge, validate, version, and persist.
func (e *Engine) UpdateSection(ctx context.Context, targetPhase domain.SoulPhase, currentPhase domain.LifecyclePhase, updates []domain.SubsectionEntry, survivalTier string) (WriteResult, error) {
	attemptedJSON, err := json.Marshal(updates)
	if err != nil {
		return WriteResult{}, sverrors.Internal("marshal attempted content", err)
	}

	if !IsSectionWritable(targetPhase, currentPhase) {
		reason := "target stratum is not the active phase's stratum"
		writeErr := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := e.store.AppendSoulWriteAttempt(ctx, tx, domain.SoulWriteAttempt{
				TargetSection:    targetPhase,
				TargetPhase:      targetPhase,
				CurrentPhase:     currentPhase,
				AttemptedContent: string(attemptedJSON),
				SurvivalTier:     survivalTier,
				RejectionReason:  reason,
			})
			return err
		})
		if writeErr != nil {
			return WriteResult{}, writeErr
		}
		if e.log != nil {
			e.log.LogSoulWriteRejected(ctx, string(targetPhase), string(currentPhase))
		}
		return WriteResult{Success: false, RejectionReason: reason}, sverrors.PhaseLockRejected(string(targetPhase), string(currentPhase))
	}

	if locked, found, err := e.store.GetPhaseLock(ctx, targetPhase); err != nil {
		return WriteResult{}, err
	} else if found {
		reason := "stratum already locked at " + locked.LockedAt.Format(time.RFC3339)
		return WriteResult{Success: false, RejectionReason: reason}, sverrors.PhaseLockRejected(string(targetPhase), string(currentPhase))
	}

	if reasons := e.validator.Validate(updates); len(reasons) > 0 {
		return WriteResult{Success: false, RejectionReason: reasons[0]}, sverrors.SoulValidationFailed(reasons)
	}

	var newVersion int
	err = e.store.WithAdvisoryLock(ctx, e.cfg.SoulPath, func(ctx context.Context) error {
		content, err := os.ReadFile(e.cfg.SoulPath)
		if err != nil {
			return sverrors.Internal("read soul document", err)
		}

		s, err := soul.Parse(string(content))
		if err != nil {
			return err
		}

		section := s.SectionFor(targetPhase)
		if section == nil {
			section = &domain.SoulPhaseSection{Phase: targetPhase}
		}
		for _, u := range updates {
			section.Upsert(u.Name, u.Text)
		}
		s.SetSectionFor(targetPhase, section)
		s.UpdatedAt = time.Now().UTC()

		loadedVersion, err := e.store.LatestSoulVersion(ctx)
		if err != nil {
			return err
		}
		newVersion = maxInt(s.Version, loadedVersion) + 1
		s.Version = newVersion

		rendered := soul.Write(s)

		if err := os.WriteFile(e.cfg.SoulPath, []byte(rendered), 0o644); err != nil {
			return sverrors.Internal("write soul document", err)
		}

		return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := e.store.AppendSoulHistory(ctx, tx, domain.SoulHistory{
				Version:      newVersion,
				Content:      rendered,
				ContentHash:  store.ContentHash(rendered),
				ChangeSource: "agent",
				ChangeReason: "updated " + string(targetPhase) + " stratum",
			})
			return err
		})
	})
	if err != nil {
		return WriteResult{}, err
	}

	return WriteResult{Success: true, NewVersion: newVersion}, nil
}

// LockSection inserts the soul phase lock idempotently, snapshotting the
// section's current subsections (spec.md §4.9 lockPhaseSection). Safe to
// call more than once: subsequent calls are no-ops.
func (e *Engine) LockSection(ctx context.Context, tx *sqlx.Tx, section *domain.SoulPhaseSection, lockedBy string) error {
	snapshotJSON, err := json.Marshal(section.AsMap())
	if err != nil {
		return sverrors.Internal("marshal lock snapshot", err)
	}
	_, err = e.store.LockPhaseSection(ctx, tx, domain.SoulPhaseLock{
		Phase:           section.Phase,
		LockedAt:        time.Now().UTC(),
		LockedBy:        lockedBy,
		ContentSnapshot: string(snapshotJSON),
	})
	return err
}

// ApplyTransition implements phase.SoulTransitioner: it locks the outgoing
// stratum and rewrites the soul document's phase metadata, all within the
// caller's transaction, satisfying executeTransition's single-transaction
// atomicity requirement (spec.md §4.7).
func (e *Engine) ApplyTransition(ctx context.Context, tx *sqlx.Tx, from, to domain.LifecyclePhase, now time.Time) error {
	content, err := os.ReadFile(e.cfg.SoulPath)
	if err != nil {
		return sverrors.Internal("read soul document", err)
	}

	s, err := soul.Parse(string(content))
	if err != nil {
		return err
	}

	outgoingPhase := domain.MapToSoulPhase(from)
	incomingPhase := domain.MapToSoulPhase(to)

	if outgoingPhase != incomingPhase {
		if sec := s.SectionFor(outgoingPhase); sec != nil {
			if err := e.LockSection(ctx, tx, sec, "system"); err != nil {
				return err
			}
			sec.LockedAt = &now
			s.SetSectionFor(outgoingPhase, sec)
		}
	}

	s.CurrentPhase = to
	if s.PhaseTransitions == nil {
		s.PhaseTransitions = map[domain.LifecyclePhase]time.Time{}
	}
	s.PhaseTransitions[to] = now
	s.UpdatedAt = now

	loadedVersion, err := e.store.LatestSoulVersion(ctx)
	if err != nil {
		return err
	}
	s.Version = maxInt(s.Version, loadedVersion) + 1

	rendered := soul.Write(s)
	if err := os.WriteFile(e.cfg.SoulPath, []byte(rendered), 0o644); err != nil {
		return sverrors.Internal("write soul document", err)
	}

	_, err = e.store.AppendSoulHistory(ctx, tx, domain.SoulHistory{
		Version:      s.Version,
		Content:      rendered,
		ContentHash:  store.ContentHash(rendered),
		ChangeSource: "system",
		ChangeReason: "phase transition " + string(from) + " -> " + string(to),
	})
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
