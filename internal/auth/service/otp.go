package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	// DefaultOTPTTL is how long an issued passcode stays redeemable.
	DefaultOTPTTL = 5 * time.Minute

	// DefaultMaxOTPAttempts is how many codes may be tried against one
	// challenge before it is expired.
	DefaultMaxOTPAttempts = 5
)

// OTPStore manages the challenge lifecycle on top of a storage driver. It
// never sees a raw code after hashing it.
type OTPStore struct {
	Repo        store.OTPChallenges
	Hasher      cryptox.Hasher
	TTL         time.Duration
	MaxAttempts int
}

func (s *OTPStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultOTPTTL
	}
	return s.TTL
}

func (s *OTPStore) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxOTPAttempts
	}
	return s.MaxAttempts
}

// Issue supersedes every outstanding challenge of userID and stores a new one
// for rawCode, expiring at now+TTL.
func (s *OTPStore) Issue(ctx context.Context, userID, email, rawCode string, now time.Time) (domain.OTPChallenge, error) {
	digest, err := s.Hasher.Hash(rawCode)
	if err != nil {
		return domain.OTPChallenge{}, infraError("hash otp", err)
	}

	ch := domain.OTPChallenge{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		Email:     email,
		OTPHash:   digest,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	if err := s.Repo.Replace(ctx, ch, now); err != nil {
		return domain.OTPChallenge{}, infraError("store otp", err)
	}

	slogx.FromContext(ctx).Debug("otp challenge issued",
		slog.String("challenge_id", ch.ID),
		slog.String("user_id", userID),
		slog.Time("expires_at", ch.ExpiresAt),
	)
	return ch, nil
}

// FindValid returns the newest challenge of userID that is unverified and
// unexpired at now.
func (s *OTPStore) FindValid(ctx context.Context, userID string, now time.Time) (domain.OTPChallenge, bool, error) {
	ch, err := s.Repo.LatestValid(ctx, userID, now)
	if errors.Is(err, store.ErrNotFound) {
		return domain.OTPChallenge{}, false, nil
	}
	if err != nil {
		return domain.OTPChallenge{}, false, infraError("load otp", err)
	}
	return ch, true, nil
}

// BeginAttempt counts one try against ch and returns its number. It reports
// false, without error, when ch has no tries left or changed since it was read.
func (s *OTPStore) BeginAttempt(ctx context.Context, ch domain.OTPChallenge) (int, bool, error) {
	n, ok, err := s.Repo.ReserveAttempt(ctx, ch.ID, ch.ExpiresAt, s.maxAttempts())
	if err != nil {
		return 0, false, infraError(fmt.Sprintf("reserve otp %s attempt", ch.ID), err)
	}
	return n, ok, nil
}

// RecordMiss expires ch once attempt has used up the last try. It reports
// whether the challenge is now exhausted.
func (s *OTPStore) RecordMiss(ctx context.Context, ch domain.OTPChallenge, attempt int, now time.Time) (bool, error) {
	if attempt < s.maxAttempts() {
		return false, nil
	}
	if err := s.Repo.Expire(ctx, ch.ID, ch.ExpiresAt, now); err != nil {
		return true, infraError(fmt.Sprintf("expire otp %s", ch.ID), err)
	}
	return true, nil
}

// MarkVerified consumes ch. It reports false, without error, when another
// caller already consumed it or it was superseded since it was read.
func (s *OTPStore) MarkVerified(ctx context.Context, ch domain.OTPChallenge, now time.Time) (bool, error) {
	ok, err := s.Repo.MarkVerified(ctx, ch.ID, ch.ExpiresAt, now)
	if err != nil {
		return false, infraError(fmt.Sprintf("mark otp %s verified", ch.ID), err)
	}
	return ok, nil
}
