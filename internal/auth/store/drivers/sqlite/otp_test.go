package sqlite_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func challenge(userID string, now time.Time, ttl time.Duration) domain.OTPChallenge {
	return domain.OTPChallenge{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		Email:     userID + "@example.com",
		OTPHash:   "digest-" + userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestOTP_ReplaceAndLatestValid(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	_, err := repo.LatestValid(ctx, "u1", now)
	require.ErrorIs(t, err, store.ErrNotFound)

	first := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, first, now))

	got, err := repo.LatestValid(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, first.OTPHash, got.OTPHash)
	require.Equal(t, first.ExpiresAt, got.ExpiresAt)
	require.Nil(t, got.VerifiedAt)

	// A second issue supersedes the first
	later := now.Add(30 * time.Second)
	second := challenge("u1", later, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, second, later))

	got, err = repo.LatestValid(ctx, "u1", later)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)

	old, err := repo.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, later, old.ExpiresAt, "superseded challenge expires at replacement time")
	require.False(t, old.IsValid(later))
}

func TestOTP_ReplaceNeverExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	expired := challenge("u1", now, time.Minute)
	require.NoError(t, repo.Replace(ctx, expired, now))

	later := now.Add(10 * time.Minute)
	require.NoError(t, repo.Replace(ctx, challenge("u1", later, 5*time.Minute), later))

	old, err := repo.GetChallenge(ctx, expired.ID)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), old.ExpiresAt)
}

func TestOTP_ReplaceLeavesOtherUsersAlone(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	a := challenge("alice", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, a, now))
	require.NoError(t, repo.Replace(ctx, challenge("bob", now, 5*time.Minute), now))

	got, err := repo.LatestValid(ctx, "alice", now)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
}

func TestOTP_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	_, err := repo.LatestValid(ctx, "u1", c.ExpiresAt.Add(-time.Nanosecond))
	require.NoError(t, err)

	_, err = repo.LatestValid(ctx, "u1", c.ExpiresAt)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOTP_MarkVerified(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	ok, err := repo.MarkVerified(ctx, c.ID, c.ExpiresAt, now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	// Second call is a silent no-op and keeps the first timestamp
	ok, err = repo.MarkVerified(ctx, c.ID, c.ExpiresAt, now.Add(2*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VerifiedAt)
	require.Equal(t, now.Add(time.Second), *got.VerifiedAt)

	_, err = repo.LatestValid(ctx, "u1", now.Add(3*time.Second))
	require.ErrorIs(t, err, store.ErrNotFound)

	stats, err := repo.Stats(ctx, now.Add(3*time.Second))
	require.NoError(t, err)
	require.Equal(t, domain.OTPStats{Total: 1, Valid: 0, Verified: 1}, stats)
}

func TestOTP_MarkVerifiedConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkVerified(ctx, c.ID, c.ExpiresAt, now)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestOTP_MarkVerifiedRejectsSuperseded(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	first := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, first, now))

	// A newer login lands between reading first and consuming it
	later := now.Add(time.Second)
	second := challenge("u1", later, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, second, later))

	ok, err := repo.MarkVerified(ctx, first.ID, first.ExpiresAt, later)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = repo.ReserveAttempt(ctx, first.ID, first.ExpiresAt, 5)
	require.NoError(t, err)
	require.False(t, ok)

	old, err := repo.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.Nil(t, old.VerifiedAt)
	require.Zero(t, old.Attempts)

	ok, err = repo.MarkVerified(ctx, second.ID, second.ExpiresAt, later)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOTP_ReserveAttempt(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	for want := 1; want <= 3; want++ {
		n, ok, err := repo.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 3)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, n)
	}

	_, ok, err := repo.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 3)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = repo.ReserveAttempt(ctx, "missing", c.ExpiresAt, 3)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Attempts)

	// Verified challenges take no more attempts
	ok, err = repo.MarkVerified(ctx, c.ID, c.ExpiresAt, now)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = repo.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOTP_ReserveAttemptConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := repo.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 5); err == nil && ok {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), reserved.Load())
}

func TestOTP_Expire(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, repo.Replace(ctx, c, now))

	// Stale expiry is ignored
	require.NoError(t, repo.Expire(ctx, c.ID, c.ExpiresAt.Add(time.Second), now))
	_, err := repo.LatestValid(ctx, "u1", now)
	require.NoError(t, err)

	at := now.Add(time.Minute)
	require.NoError(t, repo.Expire(ctx, c.ID, c.ExpiresAt, at))
	_, err = repo.LatestValid(ctx, "u1", at)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, at, got.ExpiresAt)

	// Expiry only moves earlier
	require.NoError(t, repo.Expire(ctx, c.ID, at, at.Add(time.Minute)))
	got, err = repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, at, got.ExpiresAt)
}

func TestOTP_ConcurrentReplaceKeepsOneValid(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).OTPChallenges()
	now := time.Unix(1_700_000_000, 0).UTC()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at := now.Add(time.Duration(i) * time.Millisecond)
			errs <- repo.Replace(ctx, challenge("u1", at, 5*time.Minute), at)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx, now.Add(10*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, int64(8), stats.Total)
	require.LessOrEqual(t, stats.Valid, int64(1))
}

func TestOTP_GetChallengeNotFound(t *testing.T) {
	_, err := newTestStore(t).OTPChallenges().GetChallenge(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
