package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	otpredis "github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *otpredis.OTPStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, otpredis.NewOTPStore(client, "")
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

func TestRedisOTP_ReplaceAndLatestValid(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	_, err := s.LatestValid(ctx, "u1", now)
	require.ErrorIs(t, err, store.ErrNotFound)

	first := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, first, now))

	got, err := s.LatestValid(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, first, got)

	later := now.Add(time.Minute)
	second := challenge("u1", later, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, second, later))

	got, err = s.LatestValid(ctx, "u1", later)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)

	old, err := s.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, later, old.ExpiresAt)
}

func TestRedisOTP_ReplaceNeverExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	expired := challenge("u1", now, time.Minute)
	require.NoError(t, s.Replace(ctx, expired, now))

	later := now.Add(10 * time.Minute)
	require.NoError(t, s.Replace(ctx, challenge("u1", later, 5*time.Minute), later))

	old, err := s.GetChallenge(ctx, expired.ID)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), old.ExpiresAt)
}

func TestRedisOTP_MarkVerified(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	ok, err := s.MarkVerified(ctx, c.ID, c.ExpiresAt, now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.MarkVerified(ctx, c.ID, c.ExpiresAt, now.Add(2*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.MarkVerified(ctx, "missing", c.ExpiresAt, now)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Second), *got.VerifiedAt)

	_, err = s.LatestValid(ctx, "u1", now.Add(3*time.Second))
	require.ErrorIs(t, err, store.ErrNotFound)

	// Records are retained, not expired by Redis
	require.Equal(t, time.Duration(0), mr.TTL("otp:challenge:"+c.ID))

	stats, err := s.Stats(ctx, now.Add(3*time.Second))
	require.NoError(t, err)
	require.Equal(t, domain.OTPStats{Total: 1, Verified: 1}, stats)
}

func TestRedisOTP_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	_, err := s.LatestValid(ctx, "u1", c.ExpiresAt.Add(-time.Nanosecond))
	require.NoError(t, err)

	_, err = s.LatestValid(ctx, "u1", c.ExpiresAt)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisOTP_MarkVerifiedConcurrent(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkVerified(ctx, c.ID, c.ExpiresAt, now)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestRedisOTP_MarkVerifiedRejectsSuperseded(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	first := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, first, now))

	// A newer login lands between reading first and consuming it
	later := now.Add(time.Second)
	second := challenge("u1", later, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, second, later))

	ok, err := s.MarkVerified(ctx, first.ID, first.ExpiresAt, later)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.ReserveAttempt(ctx, first.ID, first.ExpiresAt, 5)
	require.NoError(t, err)
	require.False(t, ok)

	old, err := s.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.Nil(t, old.VerifiedAt)
	require.Zero(t, old.Attempts)
}

func TestRedisOTP_ReserveAttempt(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	for want := 1; want <= 3; want++ {
		n, ok, err := s.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 3)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, n)
	}

	_, ok, err := s.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 3)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.ReserveAttempt(ctx, "missing", c.ExpiresAt, 3)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Attempts)
}

func TestRedisOTP_ReserveAttemptConcurrent(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Contention errors count as refusals
			if _, ok, err := s.ReserveAttempt(ctx, c.ID, c.ExpiresAt, 5); err == nil && ok {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, reserved.Load(), int32(5))
	require.Equal(t, int(reserved.Load()), got.Attempts)
}

func TestRedisOTP_Expire(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	c := challenge("u1", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, c, now))

	// Stale expiry is ignored
	require.NoError(t, s.Expire(ctx, c.ID, c.ExpiresAt.Add(time.Second), now))
	_, err := s.LatestValid(ctx, "u1", now)
	require.NoError(t, err)

	at := now.Add(time.Minute)
	require.NoError(t, s.Expire(ctx, c.ID, c.ExpiresAt, at))
	_, err = s.LatestValid(ctx, "u1", at)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, at, got.ExpiresAt)

	// Expiry only moves earlier
	require.NoError(t, s.Expire(ctx, c.ID, at, at.Add(time.Minute)))
	got, err = s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, at, got.ExpiresAt)

	require.NoError(t, s.Expire(ctx, "missing", at, at))
}

func TestRedisOTP_UsersIsolated(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	a := challenge("alice", now, 5*time.Minute)
	require.NoError(t, s.Replace(ctx, a, now))
	require.NoError(t, s.Replace(ctx, challenge("bob", now, 5*time.Minute), now))

	got, err := s.LatestValid(ctx, "alice", now)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	require.Equal(t, domain.OTPStats{Total: 2, Valid: 2}, stats)
}
