package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

// TokenService mints and validates HS256 access/refresh tokens.
type TokenService struct {
	Signer     *jwtx.HS256
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// NewTokenService fails if key or issuer would produce unverifiable tokens.
func NewTokenService(key []byte, issuer string, accessTTL time.Duration, now func() time.Time) (*TokenService, error) {
	if now == nil {
		now = time.Now
	}
	signer, err := jwtx.NewHS256(key, issuer, now)
	if err != nil {
		return nil, err
	}
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	return &TokenService{
		Signer:     signer,
		AccessTTL:  accessTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
		Now:        now,
	}, nil
}

func (s *TokenService) ttl(use jwtx.TokenUse) time.Duration {
	if use == jwtx.UseRefresh {
		return s.RefreshTTL
	}
	return s.AccessTTL
}

// Mint signs a token of the given use. Rights are dropped from refresh tokens.
func (s *TokenService) Mint(userID, email string, rights domain.Rights, use jwtx.TokenUse, now time.Time) (string, error) {
	claims := jwtx.NewClaims(
		userID, email,
		rights.Roles, rights.Permissions,
		use, s.ttl(use),
		s.Signer.Issuer(),
		now,
	)
	tok, err := s.Signer.Sign(claims)
	if err != nil {
		return "", infraError("sign token", err)
	}
	return tok, nil
}

// MintPair issues a fresh access and refresh token sharing the same now.
func (s *TokenService) MintPair(userID, email string, rights domain.Rights, now time.Time) (domain.AuthTokens, error) {
	access, err := s.Mint(userID, email, rights, jwtx.UseAccess, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	refresh, err := s.Mint(userID, email, rights, jwtx.UseRefresh, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}

	return domain.AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL / time.Second),
	}, nil
}

// ParseAt verifies signature, algorithm, issuer and expiry as of now and
// returns the claims. Failures are token errors.
func (s *TokenService) ParseAt(token string, now time.Time) (jwtx.Claims, error) {
	c, err := s.Signer.VerifyAt(token, now)
	if err != nil {
		return jwtx.Claims{}, &Error{Kind: KindToken, Msg: "invalid token", Err: err}
	}
	return c, nil
}

// Parse is ParseAt with the service clock.
func (s *TokenService) Parse(token string) (jwtx.Claims, error) {
	return s.ParseAt(token, s.Now())
}

// Validate reports whether the token parses and is unexpired now.
func (s *TokenService) Validate(token string) bool {
	_, err := s.Parse(token)
	return err == nil
}

// Verify accepts access tokens only, so a refresh token cannot be presented
// as a bearer credential.
func (s *TokenService) Verify(token string) (jwtx.Claims, error) {
	c, err := s.Parse(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if c.TokenUse != jwtx.UseAccess {
		return jwtx.Claims{}, tokenError(ErrAccessInvalid, errors.New("not an access token"))
	}
	return c, nil
}
