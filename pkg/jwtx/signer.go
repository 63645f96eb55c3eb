package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest HS256 key accepted, in bytes.
const MinKeyLength = 32

// ErrWeakKey is returned when the shared signing key is missing or too short.
var ErrWeakKey = fmt.Errorf("jwtx: signing key must be at least %d bytes", MinKeyLength)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256 signs and verifies tokens with a single shared secret. Every service
// holding the secret can verify tokens locally.
type HS256 struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewHS256 returns an HS256 signer/verifier bound to issuer. A nil clock
// defaults to time.Now.
func NewHS256(key []byte, issuer string, clock func() time.Time) (*HS256, error) {
	if len(strings.TrimSpace(string(key))) < MinKeyLength {
		return nil, ErrWeakKey
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("jwtx: issuer is required")
	}
	if clock == nil {
		clock = time.Now
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &HS256{key: k, issuer: issuer, now: clock}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Issuer returns the issuer stamped into and required from every token.
func (h *HS256) Issuer() string { return h.issuer }

// Sign serialises claims as a compact JWS.
func (h *HS256) Sign(c Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := t.SignedString(h.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return s, nil
}
