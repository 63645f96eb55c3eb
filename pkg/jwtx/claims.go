package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUse distinguishes access tokens from refresh tokens. A refresh token
// must never be accepted where an access token is expected and vice versa.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims carried by every token this service mints. Downstream services
// decode the same struct to authorise requests locally.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`

	// Role names, e.g. ["admin"]. Only present on access tokens.
	Roles []string `json:"roles,omitempty"`

	// Permission names, e.g. ["iam:read", "orders:write"]. Only present on
	// access tokens.
	Permissions []string `json:"permissions,omitempty"`

	TokenUse TokenUse `json:"token_use"`
}

// NewClaims builds minimally-correct claims. Refresh tokens drop roles and
// permissions since rights are re-resolved on every refresh.
func NewClaims(
	subject, email string,
	roles, permissions []string,
	use TokenUse,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:    email,
		TokenUse: use,
	}
	if use == UseAccess {
		c.Roles = roles
		c.Permissions = permissions
	}
	return c
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasPermission reports whether the claims grant the named permission.
func (c *Claims) HasPermission(name string) bool {
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry requires an exp claim strictly after now and rejects tokens
// used before nbf.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
