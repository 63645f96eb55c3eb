// Package redis stores OTP challenges in Redis for deployments that run
// several auth replicas against a shared backend.
//
// Layout:
//
//	<prefix>:challenge:<id>       hash of the challenge fields
//	<prefix>:user:<userID>:active set of challenge ids that may still be valid
//
// Challenge hashes carry no TTL; they are retained for audit like the SQL
// rows. Multi-key updates run as WATCH/MULTI transactions and are retried a
// bounded number of times on conflict.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "otp"

	maxRetries = 8
)

// ErrContention is returned when an optimistic transaction kept losing to
// concurrent writers.
var ErrContention = errors.New("redis otp: too much contention")

// OTPStore implements store.OTPChallenges on Redis.
type OTPStore struct {
	rdb    *redis.Client
	prefix string
}

var _ store.OTPChallenges = (*OTPStore)(nil)

func NewOTPStore(rdb *redis.Client, prefix string) *OTPStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &OTPStore{rdb: rdb, prefix: prefix}
}

func (s *OTPStore) challengeKey(id string) string { return s.prefix + ":challenge:" + id }

func (s *OTPStore) activeKey(userID string) string { return s.prefix + ":user:" + userID + ":active" }

// Ping verifies the Redis connection is still alive.
func (s *OTPStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *OTPStore) Replace(ctx context.Context, ch domain.OTPChallenge, now time.Time) error {
	active := s.activeKey(ch.UserID)

	for range maxRetries {
		// Read the candidate set first so the WATCH can cover every
		// challenge hash we might touch.
		ids, err := s.rdb.SMembers(ctx, active).Result()
		if err != nil {
			return fmt.Errorf("redis otp: list active: %w", err)
		}
		keys := []string{active}
		for _, id := range ids {
			keys = append(keys, s.challengeKey(id))
		}

		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.SMembers(ctx, active).Result()
			if err != nil {
				return err
			}
			if !sameMembers(ids, current) {
				return redis.TxFailedErr
			}

			var expire []string
			for _, id := range ids {
				c, err := s.load(ctx, tx, id)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if c.IsValid(now) {
					expire = append(expire, id)
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				// Only still-valid challenges are touched, so expiry never moves later
				for _, id := range expire {
					pipe.HSet(ctx, s.challengeKey(id), "expires_at", toUnix(now))
				}
				pipe.Del(ctx, active)
				pipe.HSet(ctx, s.challengeKey(ch.ID), encode(ch))
				pipe.SAdd(ctx, active, ch.ID)
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis otp: replace: %w", err)
		}
		return nil
	}

	return ErrContention
}

func (s *OTPStore) LatestValid(ctx context.Context, userID string, now time.Time) (domain.OTPChallenge, error) {
	ids, err := s.rdb.SMembers(ctx, s.activeKey(userID)).Result()
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis otp: list active: %w", err)
	}

	var (
		best  domain.OTPChallenge
		found bool
	)
	for _, id := range ids {
		c, err := s.load(ctx, s.rdb, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.OTPChallenge{}, err
		}
		if !c.IsValid(now) {
			continue
		}
		if !found || newer(c, best) {
			best, found = c, true
		}
	}

	if !found {
		return domain.OTPChallenge{}, store.ErrNotFound
	}
	return best, nil
}

func (s *OTPStore) ReserveAttempt(ctx context.Context, id string, expiresAt time.Time, maxAttempts int) (int, bool, error) {
	var (
		attempt  int
		reserved bool
	)
	err := s.update(ctx, id, func(tx *redis.Tx, c domain.OTPChallenge) error {
		if c.VerifiedAt != nil || !c.ExpiresAt.Equal(expiresAt) || c.Attempts >= maxAttempts {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, s.challengeKey(id), "attempts", 1)
			return nil
		})
		if err != nil {
			return err
		}
		attempt, reserved = c.Attempts+1, true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("redis otp: reserve attempt: %w", err)
	}
	return attempt, reserved, nil
}

func (s *OTPStore) MarkVerified(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	var marked bool
	err := s.update(ctx, id, func(tx *redis.Tx, c domain.OTPChallenge) error {
		if c.VerifiedAt != nil || !c.ExpiresAt.Equal(expiresAt) {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.challengeKey(id), "verified_at", toUnix(now))
			pipe.SRem(ctx, s.activeKey(c.UserID), id)
			return nil
		})
		if err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis otp: mark verified: %w", err)
	}
	return marked, nil
}

func (s *OTPStore) Expire(ctx context.Context, id string, expiresAt, now time.Time) error {
	err := s.update(ctx, id, func(tx *redis.Tx, c domain.OTPChallenge) error {
		if !c.IsValid(now) || !c.ExpiresAt.Equal(expiresAt) {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.challengeKey(id), "expires_at", toUnix(now))
			pipe.SRem(ctx, s.activeKey(c.UserID), id)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis otp: expire: %w", err)
	}
	return nil
}

// update runs fn against the current state of one challenge under WATCH,
// retrying on conflict. Missing challenges are skipped.
func (s *OTPStore) update(ctx context.Context, id string, fn func(tx *redis.Tx, c domain.OTPChallenge) error) error {
	for range maxRetries {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			c, err := s.load(ctx, tx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return fn(tx, c)
		}, s.challengeKey(id))

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (s *OTPStore) GetChallenge(ctx context.Context, id string) (domain.OTPChallenge, error) {
	return s.load(ctx, s.rdb, id)
}

// Stats walks every stored challenge. It is meant for periodic housekeeping,
// not request paths.
func (s *OTPStore) Stats(ctx context.Context, now time.Time) (domain.OTPStats, error) {
	var stats domain.OTPStats

	iter := s.rdb.Scan(ctx, 0, s.prefix+":challenge:*", 200).Iterator()
	for iter.Next(ctx) {
		fields, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return domain.OTPStats{}, err
		}
		c, err := decode(fields)
		if err != nil {
			continue
		}

		stats.Total++
		switch {
		case c.VerifiedAt != nil:
			stats.Verified++
		case c.IsValid(now):
			stats.Valid++
		}
	}
	if err := iter.Err(); err != nil {
		return domain.OTPStats{}, err
	}
	return stats, nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (s *OTPStore) load(ctx context.Context, c hashReader, id string) (domain.OTPChallenge, error) {
	fields, err := c.HGetAll(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis otp: load: %w", err)
	}
	if len(fields) == 0 {
		return domain.OTPChallenge{}, store.ErrNotFound
	}

	ch, err := decode(fields)
	if err != nil {
		return domain.OTPChallenge{}, err
	}
	ch.ID = id
	return ch, nil
}

func newer(a, b domain.OTPChallenge) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func encode(c domain.OTPChallenge) map[string]any {
	return map[string]any{
		"user_id":     c.UserID,
		"email":       c.Email,
		"otp_hash":    c.OTPHash,
		"expires_at":  toUnix(c.ExpiresAt),
		"created_at":  toUnix(c.CreatedAt),
		"verified_at": "",
		"attempts":    c.Attempts,
	}
}

func decode(f map[string]string) (domain.OTPChallenge, error) {
	expiresAt, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis otp: bad expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis otp: bad created_at: %w", err)
	}

	c := domain.OTPChallenge{
		UserID:    f["user_id"],
		Email:     f["email"],
		OTPHash:   f["otp_hash"],
		ExpiresAt: fromUnix(expiresAt),
		CreatedAt: fromUnix(createdAt),
	}
	if v := f["verified_at"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.OTPChallenge{}, fmt.Errorf("redis otp: bad verified_at: %w", err)
		}
		t := fromUnix(n)
		c.VerifiedAt = &t
	}
	if v := f["attempts"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.OTPChallenge{}, fmt.Errorf("redis otp: bad attempts: %w", err)
		}
		c.Attempts = n
	}
	return c, nil
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }
