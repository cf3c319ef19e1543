// Package store owns the single persistent LifecycleStore every engine
// shares: the KV table, the append-only logs, and the soul file's advisory
// lock. Grounded on the teacher's system/core lifecycle/registry pattern —
// one owned struct passed explicitly to every consumer, no ambient
// singletons (spec.md §9 "Global mutable state").
package store

import (
	"context"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/automaton-systems/lifecycle-core/domain"
	sverrors "github.com/automaton-systems/lifecycle-core/infrastructure/errors"
)

// LifecycleStore is the one owned handle to persistence shared by every
// lifecycle engine. It is passed explicitly as a constructor argument —
// never reached via a package-level global.
type LifecycleStore struct {
	db *sqlx.DB

	// soulLocks holds the in-process mutex per key (the soul file path)
	// that WithAdvisoryLock takes before its Postgres session advisory lock.
	mu        sync.Mutex
	soulLocks map[string]*sync.Mutex
}

// New constructs a LifecycleStore bound to an already-open database handle.
func New(db *sqlx.DB) *LifecycleStore {
	return &LifecycleStore{db: db, soulLocks: make(map[string]*sync.Mutex)}
}

// DB exposes the underlying handle for callers (e.g. migrations) that need it directly.
func (s *LifecycleStore) DB() *sqlx.DB { return s.db }

func (s *LifecycleStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.soulLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.soulLocks[key] = l
	}
	return l
}

// WithAdvisoryLock serializes fn against every other in-process caller
// using the same key, and also takes a Postgres session advisory lock so
// multi-process deployments serialize too (spec.md §4.9, §5: "writer holds
// an advisory lock on the soul file/DB").
func (s *LifecycleStore) WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return sverrors.DatabaseError("acquire advisory lock connection", err)
	}
	defer conn.Close()

	lockID := advisoryLockID(key)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return sverrors.DatabaseError("pg_advisory_lock", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID)
	}()

	return fn(ctx)
}

// advisoryLockID maps an arbitrary string key to the int64 Postgres
// advisory locks require.
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// WithTx runs fn inside a single database transaction, committing on
// success and rolling back on any error or panic — the "all steps MUST be
// atomic with respect to observers" discipline spec.md §4.7 and §5 require
// for transitions and soul writes alike.
func (s *LifecycleStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sverrors.DatabaseError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = sverrors.DatabaseError("commit transaction", cerr)
		}
	}()

	err = fn(tx)
	return err
}

// KV get/set

// GetKV reads a value for key, returning ok=false if unset.
func (s *LifecycleStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = $1`, key)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", false, nil
		}
		return "", false, sverrors.DatabaseError("get kv", err)
	}
	return value, true, nil
}

// SetKV upserts a KV row within an existing transaction.
func (s *LifecycleStore) SetKV(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return sverrors.DatabaseError("set kv", err)
	}
	return nil
}

// GetKVJSON reads and unmarshals a JSON-encoded KV value into out.
func (s *LifecycleStore) GetKVJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok, err := s.GetKV(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, sverrors.Internal("unmarshal kv "+key, err)
	}
	return true, nil
}

// SetKVJSON marshals v to JSON and upserts it within tx.
func (s *LifecycleStore) SetKVJSON(ctx context.Context, tx *sqlx.Tx, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return sverrors.Internal("marshal kv "+key, err)
	}
	return s.SetKV(ctx, tx, key, string(raw))
}

// Lifecycle events

// AppendLifecycleEvent inserts one event row within tx and returns its id.
func (s *LifecycleStore) AppendLifecycleEvent(ctx context.Context, tx *sqlx.Tx, ev domain.LifecycleEvent) (int64, error) {
	metadataJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return 0, sverrors.Internal("marshal event metadata", err)
	}

	var id int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO lifecycle_events (from_phase, to_phase, reason, metadata)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		string(ev.FromPhase), string(ev.ToPhase), ev.Reason, metadataJSON).Scan(&id)
	if err != nil {
		return 0, sverrors.DatabaseError("insert lifecycle_events", err)
	}
	return id, nil
}

// ListLifecycleEvents returns every event in monotonic id order.
func (s *LifecycleStore) ListLifecycleEvents(ctx context.Context) ([]domain.LifecycleEvent, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT id, timestamp, from_phase, to_phase, reason, metadata FROM lifecycle_events ORDER BY id ASC`)
	if err != nil {
		return nil, sverrors.DatabaseError("list lifecycle_events", err)
	}
	defer rows.Close()

	var out []domain.LifecycleEvent
	for rows.Next() {
		var (
			id               int64
			ts               time.Time
			from, to, reason string
			metadataJSON     []byte
		)
		if err := rows.Scan(&id, &ts, &from, &to, &reason, &metadataJSON); err != nil {
			return nil, sverrors.DatabaseError("scan lifecycle_events", err)
		}
		var metadata map[string]string
		_ = json.Unmarshal(metadataJSON, &metadata)
		out = append(out, domain.LifecycleEvent{
			ID: id, Timestamp: ts,
			FromPhase: domain.LifecyclePhase(from), ToPhase: domain.LifecyclePhase(to),
			Reason: reason, Metadata: metadata,
		})
	}
	return out, rows.Err()
}

// Soul history

// AppendSoulHistory inserts a new version row within tx.
func (s *LifecycleStore) AppendSoulHistory(ctx context.Context, tx *sqlx.Tx, h domain.SoulHistory) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO soul_history (version, content, content_hash, change_source, change_reason, previous_version_id, approved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		h.Version, h.Content, h.ContentHash, h.ChangeSource, h.ChangeReason, nullableID(h.PreviousVersionID), h.ApprovedBy).Scan(&id)
	if err != nil {
		return 0, sverrors.DatabaseError("insert soul_history", err)
	}
	return id, nil
}

// LatestSoulVersion returns the highest version recorded, or 0 if none.
func (s *LifecycleStore) LatestSoulVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM soul_history`)
	if err != nil {
		return 0, sverrors.DatabaseError("latest soul version", err)
	}
	return version, nil
}

func nullableID(id *int64) driver.Valuer {
	return nullInt64{id}
}

type nullInt64 struct{ v *int64 }

func (n nullInt64) Value() (driver.Value, error) {
	if n.v == nil {
		return nil, nil
	}
	return *n.v, nil
}

// Soul write attempts

// AppendSoulWriteAttempt inserts the rejection record verbatim — it must
// be preserved even when attempted content would fail validation
// (spec.md §4.9 "experimental record").
func (s *LifecycleStore) AppendSoulWriteAttempt(ctx context.Context, tx *sqlx.Tx, a domain.SoulWriteAttempt) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO soul_write_attempts (target_section, target_phase, current_phase, attempted_content, survival_tier, rejection_reason)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(a.TargetSection), string(a.TargetPhase), string(a.CurrentPhase), a.AttemptedContent, a.SurvivalTier, a.RejectionReason).Scan(&id)
	if err != nil {
		return 0, sverrors.DatabaseError("insert soul_write_attempts", err)
	}
	return id, nil
}

// ListSoulWriteAttempts returns every rejection record ordered by creation time.
func (s *LifecycleStore) ListSoulWriteAttempts(ctx context.Context) ([]domain.SoulWriteAttempt, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, target_section, target_phase, current_phase, attempted_content, survival_tier, rejection_reason, created_at
		FROM soul_write_attempts ORDER BY created_at ASC`)
	if err != nil {
		return nil, sverrors.DatabaseError("list soul_write_attempts", err)
	}
	defer rows.Close()

	var out []domain.SoulWriteAttempt
	for rows.Next() {
		var a domain.SoulWriteAttempt
		var targetSection, targetPhase, currentPhase string
		if err := rows.Scan(&a.ID, &targetSection, &targetPhase, &currentPhase, &a.AttemptedContent, &a.SurvivalTier, &a.RejectionReason, &a.CreatedAt); err != nil {
			return nil, sverrors.DatabaseError("scan soul_write_attempts", err)
		}
		a.TargetSection = domain.SoulPhase(targetSection)
		a.TargetPhase = domain.SoulPhase(targetPhase)
		a.CurrentPhase = domain.LifecyclePhase(currentPhase)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Soul phase locks

// LockPhaseSection inserts a unique lock row. Idempotent: if the phase is
// already locked, the existing row (and its snapshot) is left untouched
// and returned, never replaced (spec.md §4.9).
func (s *LifecycleStore) LockPhaseSection(ctx context.Context, tx *sqlx.Tx, l domain.SoulPhaseLock) (domain.SoulPhaseLock, error) {
	existing, found, err := s.getPhaseLockTx(ctx, tx, l.Phase)
	if err != nil {
		return domain.SoulPhaseLock{}, err
	}
	if found {
		return existing, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO soul_phase_locks (phase, locked_at, locked_by, content_snapshot)
		VALUES ($1, $2, $3, $4)`,
		string(l.Phase), l.LockedAt, l.LockedBy, l.ContentSnapshot)
	if err != nil {
		return domain.SoulPhaseLock{}, sverrors.DatabaseError("insert soul_phase_locks", err)
	}
	return l, nil
}

func (s *LifecycleStore) getPhaseLockTx(ctx context.Context, tx *sqlx.Tx, phase domain.SoulPhase) (domain.SoulPhaseLock, bool, error) {
	var l domain.SoulPhaseLock
	var phaseStr string
	err := tx.QueryRowxContext(ctx, `SELECT phase, locked_at, locked_by, content_snapshot FROM soul_phase_locks WHERE phase = $1`, string(phase)).
		Scan(&phaseStr, &l.LockedAt, &l.LockedBy, &l.ContentSnapshot)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return domain.SoulPhaseLock{}, false, nil
		}
		return domain.SoulPhaseLock{}, false, sverrors.DatabaseError("get soul_phase_locks", err)
	}
	l.Phase = domain.SoulPhase(phaseStr)
	return l, true, nil
}

// GetPhaseLock reads the lock row for a phase outside any transaction.
func (s *LifecycleStore) GetPhaseLock(ctx context.Context, phase domain.SoulPhase) (domain.SoulPhaseLock, bool, error) {
	var l domain.SoulPhaseLock
	var phaseStr string
	err := s.db.QueryRowxContext(ctx, `SELECT phase, locked_at, locked_by, content_snapshot FROM soul_phase_locks WHERE phase = $1`, string(phase)).
		Scan(&phaseStr, &l.LockedAt, &l.LockedBy, &l.ContentSnapshot)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return domain.SoulPhaseLock{}, false, nil
		}
		return domain.SoulPhaseLock{}, false, sverrors.DatabaseError("get soul_phase_locks", err)
	}
	l.Phase = domain.SoulPhase(phaseStr)
	return l, true, nil
}

// Narrative events

// AppendNarrativeEvent appends one async activity log row.
func (s *LifecycleStore) AppendNarrativeEvent(ctx context.Context, kind, message string, metadata map[string]string) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return sverrors.Internal("marshal narrative metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO narrative_events (kind, message, metadata) VALUES ($1, $2, $3)`, kind, message, metadataJSON)
	if err != nil {
		return sverrors.DatabaseError("insert narrative_events", err)
	}
	return nil
}

// ContentHash returns the hex SHA-256 of content, used for soul_history's
// content_hash column and for round-trip verification.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
