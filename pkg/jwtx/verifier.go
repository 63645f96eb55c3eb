package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verify validates the token against the current clock.
func (h *HS256) Verify(token string) (Claims, error) {
	return h.VerifyAt(token, h.now())
}

// VerifyAt checks structure, algorithm, signature, issuer and expiry as of
// now. Every failure maps onto one of the package sentinel errors.
func (h *HS256) VerifyAt(tokenStr string, now time.Time) (Claims, error) {
	// Time based checks are done below against the caller's clock.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		// Only HS256 is accepted, so alg=none and alg confusion never reach the key
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrAlgMismatch
		}
		return h.key, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(now); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Unknown alg header values fail before the keyfunc runs
		return ErrAlgMismatch
	default:
		return ErrMalformed
	}
}
