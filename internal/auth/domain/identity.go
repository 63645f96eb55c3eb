package domain

// VerifiedIdentity is the result of checking an external ID token. It is
// never persisted.
type VerifiedIdentity struct {
	ProviderUserID string // Stable subject from the identity provider
	Email          string
	EmailVerified  bool
}

// LoginResult is returned by the first authentication step. The one-time
// code itself is delivered out of band and never appears here.
type LoginResult struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	MFARequired bool   `json:"mfa_required"` // always true
}
