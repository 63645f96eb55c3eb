package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestOTPStore_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.Clock.Now()

	_, ok, err := h.OTP.FindValid(ctx, "u1", now)
	require.NoError(t, err)
	require.False(t, ok)

	// Scenario: issue "482913" for u1/a@x.com
	first, err := h.OTP.Issue(ctx, "u1", "a@x.com", "482913", now)
	require.NoError(t, err)
	require.NotEqual(t, "482913", first.OTPHash)
	require.Equal(t, now.Add(5*time.Minute), first.ExpiresAt)

	found, ok, err := h.OTP.FindValid(ctx, "u1", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, found.ID)
	require.True(t, h.Flow.Hasher.Verify("482913", found.OTPHash))
	require.False(t, h.Flow.Hasher.Verify("482912", found.OTPHash))

	// A second issue leaves only the second challenge valid
	later := now.Add(time.Second)
	second, err := h.OTP.Issue(ctx, "u1", "a@x.com", "111111", later)
	require.NoError(t, err)

	found, ok, err = h.OTP.FindValid(ctx, "u1", later)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second.ID, found.ID)

	// The superseded challenge can no longer be consumed
	won, err := h.OTP.MarkVerified(ctx, first, later)
	require.NoError(t, err)
	require.False(t, won)

	// Consuming the current one is one-shot
	won, err = h.OTP.MarkVerified(ctx, found, later)
	require.NoError(t, err)
	require.True(t, won)

	won, err = h.OTP.MarkVerified(ctx, found, later)
	require.NoError(t, err)
	require.False(t, won)

	_, ok, err = h.OTP.FindValid(ctx, "u1", later)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOTPStore_Expiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.Clock.Now()

	_, err := h.OTP.Issue(ctx, "u1", "a@x.com", "123456", now)
	require.NoError(t, err)

	_, ok, err := h.OTP.FindValid(ctx, "u1", now.Add(5*time.Minute-time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = h.OTP.FindValid(ctx, "u1", now.Add(5*time.Minute))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOTPStore_DefaultTTL(t *testing.T) {
	h := newHarness(t)
	otp := &service.OTPStore{Repo: h.Store.OTPChallenges(), Hasher: cryptox.NewBcryptHasher(bcrypt.MinCost)}

	ch, err := otp.Issue(context.Background(), "u1", "a@x.com", "123456", epoch)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(service.DefaultOTPTTL), ch.ExpiresAt)
}

func TestOTPStore_AttemptBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.Clock.Now()
	h.OTP.MaxAttempts = 2

	ch, err := h.OTP.Issue(ctx, "u1", "a@x.com", "123456", now)
	require.NoError(t, err)

	n, ok, err := h.OTP.BeginAttempt(ctx, ch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, n)

	exhausted, err := h.OTP.RecordMiss(ctx, ch, n, now)
	require.NoError(t, err)
	require.False(t, exhausted)

	_, ok, err = h.OTP.FindValid(ctx, "u1", now)
	require.NoError(t, err)
	require.True(t, ok)

	n, ok, err = h.OTP.BeginAttempt(ctx, ch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, n)

	exhausted, err = h.OTP.RecordMiss(ctx, ch, n, now)
	require.NoError(t, err)
	require.True(t, exhausted)

	// Out of tries: no further attempt and no valid challenge left
	_, ok, err = h.OTP.BeginAttempt(ctx, ch)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = h.OTP.FindValid(ctx, "u1", now)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := h.Store.OTPChallenges().GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Attempts)
	require.Equal(t, now, stored.ExpiresAt)
	require.Nil(t, stored.VerifiedAt)
}

func TestOTPStore_DefaultMaxAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.Clock.Now()

	ch, err := h.OTP.Issue(ctx, "u1", "a@x.com", "123456", now)
	require.NoError(t, err)

	for want := 1; want <= service.DefaultMaxOTPAttempts; want++ {
		n, ok, err := h.OTP.BeginAttempt(ctx, ch)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, n)
	}

	_, ok, err := h.OTP.BeginAttempt(ctx, ch)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOTPStore_HashMutations(t *testing.T) {
	hasher := cryptox.NewBcryptHasher(bcrypt.MinCost)
	code := "482913"
	digest, err := hasher.Hash(code)
	require.NoError(t, err)

	require.True(t, hasher.Verify(code, digest))
	for i := range len(code) {
		b := []byte(code)
		b[i] = '0' + (b[i]-'0'+1)%10
		require.False(t, hasher.Verify(string(b), digest), "mutation %q must not verify", b)
	}
}

type brokenRepo struct{}

var errDown = errors.New("database is down")

func (brokenRepo) Replace(context.Context, domain.OTPChallenge, time.Time) error { return errDown }
func (brokenRepo) LatestValid(context.Context, string, time.Time) (domain.OTPChallenge, error) {
	return domain.OTPChallenge{}, errDown
}
func (brokenRepo) ReserveAttempt(context.Context, string, time.Time, int) (int, bool, error) {
	return 0, false, errDown
}
func (brokenRepo) MarkVerified(context.Context, string, time.Time, time.Time) (bool, error) {
	return false, errDown
}
func (brokenRepo) Expire(context.Context, string, time.Time, time.Time) error { return errDown }
func (brokenRepo) GetChallenge(context.Context, string) (domain.OTPChallenge, error) {
	return domain.OTPChallenge{}, errDown
}
func (brokenRepo) Stats(context.Context, time.Time) (domain.OTPStats, error) {
	return domain.OTPStats{}, errDown
}

func TestOTPStore_StorageFailureIsInfrastructure(t *testing.T) {
	ctx := context.Background()
	otp := &service.OTPStore{Repo: brokenRepo{}, Hasher: cryptox.NewBcryptHasher(bcrypt.MinCost)}

	_, err := otp.Issue(ctx, "u1", "a@x.com", "123456", epoch)
	requireKind(t, err, service.KindInfrastructure)
	require.ErrorIs(t, err, errDown)

	_, _, err = otp.FindValid(ctx, "u1", epoch)
	requireKind(t, err, service.KindInfrastructure)

	ch := domain.OTPChallenge{ID: "id", ExpiresAt: epoch.Add(time.Minute)}

	_, _, err = otp.BeginAttempt(ctx, ch)
	requireKind(t, err, service.KindInfrastructure)

	_, err = otp.RecordMiss(ctx, ch, service.DefaultMaxOTPAttempts, epoch)
	requireKind(t, err, service.KindInfrastructure)

	_, err = otp.MarkVerified(ctx, ch, epoch)
	requireKind(t, err, service.KindInfrastructure)
}
