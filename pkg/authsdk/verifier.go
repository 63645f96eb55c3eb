package authsdk

import (
	"errors"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

// ErrNotAccessToken is returned when a refresh token is presented as a
// bearer credential.
var ErrNotAccessToken = errors.New("authsdk: not an access token")

// LocalVerifier lets downstream services validate access tokens with the
// shared secret, without calling the auth service.
type LocalVerifier struct {
	hs *jwtx.HS256
}

// NewLocalVerifier fails on a short key or blank issuer, like the issuing
// service does.
func NewLocalVerifier(secret []byte, issuer string) (*LocalVerifier, error) {
	hs, err := jwtx.NewHS256(secret, issuer, nil)
	if err != nil {
		return nil, err
	}
	return &LocalVerifier{hs: hs}, nil
}

// Verify implements jwtx.Verifier. Refresh tokens are rejected.
func (v *LocalVerifier) Verify(token string) (jwtx.Claims, error) {
	c, err := v.hs.Verify(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if c.TokenUse != jwtx.UseAccess {
		return jwtx.Claims{}, ErrNotAccessToken
	}
	return c, nil
}
