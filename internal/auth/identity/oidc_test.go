package identity_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	issuer   = "https://securetoken.google.com/gatehouse-test"
	audience = "gatehouse-test"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            issuer,
		"aud":            audience,
		"sub":            "firebase-uid-1",
		"email":          "a@x.com",
		"email_verified": true,
		"iat":            now.Add(-time.Minute).Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestOIDCVerifier_Verify(t *testing.T) {
	key := newKey(t)
	v := identity.NewStaticOIDCVerifier(issuer, audience, []crypto.PublicKey{key.Public()}, func() time.Time { return now })

	id, err := v.Verify(context.Background(), sign(t, key, baseClaims()))
	require.NoError(t, err)
	require.Equal(t, "firebase-uid-1", id.ProviderUserID)
	require.Equal(t, "a@x.com", id.Email)
	require.True(t, id.EmailVerified)
}

func TestOIDCVerifier_Rejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	v := identity.NewStaticOIDCVerifier(issuer, audience, []crypto.PublicKey{key.Public()}, func() time.Time { return now })

	with := func(k string, val any) jwt.MapClaims {
		c := baseClaims()
		if val == nil {
			delete(c, k)
		} else {
			c[k] = val
		}
		return c
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "a.b.c"},
		{"wrong key", sign(t, other, baseClaims())},
		{"wrong audience", sign(t, key, with("aud", "someone-else"))},
		{"wrong issuer", sign(t, key, with("iss", "https://evil.example"))},
		{"expired", sign(t, key, with("exp", now.Add(-time.Minute).Unix()))},
		{"missing email", sign(t, key, with("email", nil))},
		{"blank email", sign(t, key, with("email", "  "))},
		{"missing subject", sign(t, key, with("sub", nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.ErrorIs(t, err, identity.ErrInvalidCredential)
		})
	}
}

func TestNewOIDCVerifier_RequiresConfig(t *testing.T) {
	_, err := identity.NewOIDCVerifier(context.Background(), "", audience)
	require.Error(t, err)
	_, err = identity.NewOIDCVerifier(context.Background(), issuer, " ")
	require.Error(t, err)
}
