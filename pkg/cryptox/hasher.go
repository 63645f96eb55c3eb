package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns short secrets (one-time passcodes) into storable digests.
//
// Verify must never return an error: malformed or foreign digests simply do
// not match.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, digest string) bool
}

// Supported hashing algorithms, as used in configuration.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrUnknownAlgorithm is returned by NewHasher for unsupported algorithm names.
var ErrUnknownAlgorithm = errors.New("cryptox: unknown hash algorithm")

// BcryptHasher hashes with bcrypt. Salt and cost are embedded in the digest.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost outside bcrypt's accepted
// range falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Verify(raw, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(raw)) == nil
}

// NewHasher builds the hasher named by algorithm. The pepper is only used by
// argon2id.
func NewHasher(algorithm string, bcryptCost int, pepper string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmBcrypt:
		return NewBcryptHasher(bcryptCost), nil
	case AlgorithmArgon2id:
		return NewArgon2Hasher(pepper), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
