package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "gatehouse",
		},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("gatehouse"))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("orders"), jwtx.ErrIssuer)
	})

	t.Run("empty expected issuer still enforced", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer(""), jwtx.ErrIssuer)
	})
}

func TestValidateExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	t.Run("valid token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		require.NoError(t, claims.ValidateExpiry(now))
	})

	t.Run("expired token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(now), jwtx.ErrExpired)
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(now), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
				NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(now), jwtx.ErrNotYetValid)
	})

	t.Run("missing exp", func(t *testing.T) {
		claims := &jwtx.Claims{}
		require.ErrorIs(t, claims.ValidateExpiry(now), jwtx.ErrInvalidClaim)
	})
}

func TestNewClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	access := jwtx.NewClaims("u1", "a@x.io", []string{"admin"}, []string{"iam:read"},
		jwtx.UseAccess, jwtx.DefaultAccessTokenTTL, "gatehouse", now)
	require.Equal(t, "u1", access.Subject)
	require.Equal(t, "gatehouse", access.Issuer)
	require.Equal(t, []string{"admin"}, access.Roles)
	require.Equal(t, []string{"iam:read"}, access.Permissions)
	require.Equal(t, now.Add(15*time.Minute), access.ExpiresAt.Time)
	require.NotEmpty(t, access.ID)
	require.True(t, access.HasPermission("iam:read"))
	require.False(t, access.HasPermission("iam:write"))

	refresh := jwtx.NewClaims("u1", "a@x.io", []string{"admin"}, []string{"iam:read"},
		jwtx.UseRefresh, jwtx.DefaultRefreshTokenTTL, "gatehouse", now)
	require.Nil(t, refresh.Roles)
	require.Nil(t, refresh.Permissions)
	require.Equal(t, jwtx.UseRefresh, refresh.TokenUse)
	require.Equal(t, now.Add(7*24*time.Hour), refresh.ExpiresAt.Time)
	require.NotEqual(t, access.ID, refresh.ID)
}
