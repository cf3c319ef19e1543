// Package crypto provides the cryptographic primitives behind the sealed
// death clock: salted one-way hashing and HKDF-based subkey derivation,
// grounded on the teacher's internal/crypto key-derivation helpers.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key using HKDF-SHA256. Used by engine/deathclock to
// expand the sealed clock's salt into one subkey per hashed field
// ("death-date", "dying-duration").
func DeriveKey(masterKey, salt []byte, info string, keyLen int) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, masterKey, salt, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// GenerateRandomBytes generates cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateSalt returns 32 cryptographically random bytes, hex-encoded —
// the salt backing a SealedDeathClock (spec.md §3 invariant).
func GenerateSalt() (string, error) {
	raw, err := GenerateRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// SaltedHash computes SHA-256(salt || ":" || value), hex-encoded — the
// one-way hash construction behind both deathDateHash and
// dyingDurationHash (spec.md §3, §4.2).
func SaltedHash(saltHex, value string) string {
	h := sha256.New()
	h.Write([]byte(saltHex))
	h.Write([]byte(":"))
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
