// Package identity verifies first-factor ID tokens issued by an external
// OpenID Connect provider (Google, Firebase, Keycloak).
package identity

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidCredential wraps every rejection: bad signature, wrong audience,
// expiry, or missing claims.
var ErrInvalidCredential = errors.New("identity: invalid credential")

// OIDCVerifier checks ID tokens against the provider's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuer and verifies tokens
// minted for audience (the OAuth client ID or Firebase project ID).
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	if strings.TrimSpace(issuer) == "" || strings.TrimSpace(audience) == "" {
		return nil, errors.New("identity: issuer and audience are required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

// NewStaticOIDCVerifier verifies against a fixed key set without discovery.
// A nil clock uses time.Now.
func NewStaticOIDCVerifier(issuer, audience string, keys []crypto.PublicKey, now func() time.Time) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: keys}, &oidc.Config{
			ClientID: audience,
			Now:      now,
		}),
	}
}

type idClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Verify returns the identity carried by rawIDToken.
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (domain.VerifiedIdentity, error) {
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return domain.VerifiedIdentity{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	tok, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return domain.VerifiedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var c idClaims
	if err := tok.Claims(&c); err != nil {
		return domain.VerifiedIdentity{}, fmt.Errorf("%w: claims: %v", ErrInvalidCredential, err)
	}
	if c.Subject == "" || strings.TrimSpace(c.Email) == "" {
		return domain.VerifiedIdentity{}, fmt.Errorf("%w: missing sub or email", ErrInvalidCredential)
	}

	return domain.VerifiedIdentity{
		ProviderUserID: c.Subject,
		Email:          strings.TrimSpace(c.Email),
		EmailVerified:  c.EmailVerified,
	}, nil
}
