// Package deathclock implements the sealed, tamper-proof mortality record
// described in spec.md §4.2: a death date and dying-duration are sampled
// once at birth, salted-hashed, and the plaintexts discarded. Only a daily
// hash comparison against "today" can ever reveal them again.
package deathclock

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/automaton-systems/lifecycle-core/domain"
	"github.com/automaton-systems/lifecycle-core/infrastructure/crypto"
	sverrors "github.com/automaton-systems/lifecycle-core/infrastructure/errors"
)

// deriveSubSalt expands the clock's master salt into a purpose-specific
// subkey via HKDF-SHA256, the way the teacher derives an envelope key's
// per-subject subkeys from one root secret. DeathDateHash and
// DyingDurationHash each get their own subkey instead of sharing the raw
// master salt, so recovering one hash's preimage space doesn't help an
// attacker against the other.
func deriveSubSalt(masterSaltHex, purpose string) (string, error) {
	master, err := hex.DecodeString(masterSaltHex)
	if err != nil {
		return "", sverrors.Internal("decode death clock salt", err)
	}
	sub, err := crypto.DeriveKey(master, nil, "deathclock:"+purpose, 32)
	if err != nil {
		return "", sverrors.Internal("derive death clock subkey", err)
	}
	return hex.EncodeToString(sub), nil
}

// candidateDurations is the fixed, exhaustive set of dying-duration
// lengths a sealed clock can ever carry. Every triggered clock's duration
// hash must match exactly one.
var candidateDurations = []int{2, 3, 4, 5, 6, 7}

// curveSteepness maps a revealed dyingDurationDays to the degradation
// curve's steepness (spec.md §4.2, §4.5).
var curveSteepness = map[int]float64{
	2: 0.8,
	3: 0.6,
	4: 0.4,
	5: 0.3,
	6: 0.2,
	7: 0.15,
}

// CurveSteepness returns the steepness associated with a revealed duration,
// or 0 if the duration is not one of the six recognized candidates.
func CurveSteepness(dyingDurationDays int) float64 {
	return curveSteepness[dyingDurationDays]
}

const lunarCycleDays = 29.53059

// Generate samples a fresh sealed death clock at birth. The onset day is
// drawn uniformly from [13P, 16P) where P is the lunar cycle length, so the
// revealed death date always falls within lunar cycles 13-15 inclusive.
// Plaintexts are used only to compute the hashes and are then discarded —
// the caller must not retain the returned date/duration beyond logging for
// test/audit purposes.
func Generate(birth time.Time) (domain.SealedDeathClock, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return domain.SealedDeathClock{}, sverrors.Internal("generate death clock salt", err)
	}

	onsetDay, err := randFloatInRange(13*lunarCycleDays, 16*lunarCycleDays)
	if err != nil {
		return domain.SealedDeathClock{}, err
	}
	deathDate := birth.UTC().Add(time.Duration(onsetDay * float64(24*time.Hour))).Format("2006-01-02")

	duration, err := randIntFromSet(candidateDurations)
	if err != nil {
		return domain.SealedDeathClock{}, err
	}

	dateSalt, err := deriveSubSalt(salt, "death-date")
	if err != nil {
		return domain.SealedDeathClock{}, err
	}
	durationSalt, err := deriveSubSalt(salt, "dying-duration")
	if err != nil {
		return domain.SealedDeathClock{}, err
	}

	return domain.SealedDeathClock{
		DeathDateHash:     crypto.SaltedHash(dateSalt, deathDate),
		DyingDurationHash: crypto.SaltedHash(durationSalt, durationKey(duration)),
		Salt:              salt,
		SealedAt:          time.Now().Unix(),
	}, nil
}

func durationKey(days int) string {
	return fmt.Sprintf("%d", days)
}

func randFloatInRange(lo, hi float64) (float64, error) {
	const precision = 1 << 40
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0, sverrors.Internal("sample death clock onset day", err)
	}
	frac := float64(n.Int64()) / float64(precision)
	return lo + frac*(hi-lo), nil
}

func randIntFromSet(set []int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, sverrors.Internal("sample dying duration", err)
	}
	return set[n.Int64()], nil
}

// CheckResult is the outcome of a daily trigger check.
type CheckResult struct {
	DegradationActive bool
	OnsetCycle        *int
	CurveSteepness    float64
	Clock             domain.SealedDeathClock // updated clock if it just triggered
	Changed           bool                    // true if Clock differs from the input and must be persisted
}

// Check performs the idempotent daily comparison (spec.md §4.2). If the
// clock has already triggered, it short-circuits active. If currentCycle
// has not yet reached the onset window, it short-circuits inactive without
// hashing anything. Otherwise it hashes today's date and compares.
func Check(c domain.SealedDeathClock, currentCycle int, today time.Time) (CheckResult, error) {
	if c.Triggered {
		return CheckResult{
			DegradationActive: true,
			OnsetCycle:        c.TriggeredAtCycle,
			CurveSteepness:    CurveSteepness(valueOrZero(c.DyingDurationDays)),
			Clock:             c,
		}, nil
	}

	if currentCycle < 13 {
		return CheckResult{DegradationActive: false, Clock: c}, nil
	}

	dateSalt, err := deriveSubSalt(c.Salt, "death-date")
	if err != nil {
		return CheckResult{}, err
	}

	todayStr := today.UTC().Format("2006-01-02")
	if crypto.SaltedHash(dateSalt, todayStr) != c.DeathDateHash {
		return CheckResult{DegradationActive: false, Clock: c}, nil
	}

	durationSalt, err := deriveSubSalt(c.Salt, "dying-duration")
	if err != nil {
		return CheckResult{}, err
	}

	for _, candidate := range candidateDurations {
		if crypto.SaltedHash(durationSalt, durationKey(candidate)) == c.DyingDurationHash {
			updated := c
			updated.Triggered = true
			cycle := currentCycle
			updated.TriggeredAtCycle = &cycle
			days := candidate
			updated.DyingDurationDays = &days

			return CheckResult{
				DegradationActive: true,
				OnsetCycle:        &cycle,
				CurveSteepness:    CurveSteepness(candidate),
				Clock:             updated,
				Changed:           true,
			}, nil
		}
	}

	return CheckResult{}, sverrors.DeathClockCorrupted()
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// VerifyResult reports which plaintext fields matched their stored hashes.
type VerifyResult struct {
	DateValid     bool
	DurationValid bool
}

// Verify recomputes both hashes against the supplied plaintexts and
// compares them to the stored hashes — the post-mortem auditable proof
// that nobody tampered with the clock (spec.md §4.2).
func Verify(c domain.SealedDeathClock, plaintextDate string, plaintextDuration int) VerifyResult {
	dateSalt, dateErr := deriveSubSalt(c.Salt, "death-date")
	durationSalt, durationErr := deriveSubSalt(c.Salt, "dying-duration")
	if dateErr != nil || durationErr != nil {
		return VerifyResult{}
	}
	return VerifyResult{
		DateValid:     crypto.SaltedHash(dateSalt, plaintextDate) == c.DeathDateHash,
		DurationValid: crypto.SaltedHash(durationSalt, durationKey(plaintextDuration)) == c.DyingDurationHash,
	}
}
