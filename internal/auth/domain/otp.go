package domain

import "time"

// OTPChallenge is one issued email passcode awaiting verification.
//
// A challenge is valid while VerifiedAt is nil and the current time is
// before ExpiresAt. Challenges are never deleted; superseded or exhausted
// ones are expired in place so the history stays auditable.
type OTPChallenge struct {
	ID         string // ULID
	UserID     string
	Email      string
	OTPHash    string // bcrypt or argon2id digest, never the raw code
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time

	// Attempts counts verification tries made against this challenge.
	Attempts int
}

// IsValid reports whether the challenge can still be redeemed at now.
func (c OTPChallenge) IsValid(now time.Time) bool {
	return c.VerifiedAt == nil && now.Before(c.ExpiresAt)
}

// OTPStats summarises stored challenges for housekeeping logs.
type OTPStats struct {
	Total    int64
	Valid    int64
	Verified int64
}
