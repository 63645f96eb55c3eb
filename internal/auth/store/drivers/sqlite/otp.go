package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

type otpRepo struct {
	q querier

	// root is set when the repo is not already inside a transaction, so
	// multi-statement operations can open one.
	root *Store
}

const otpColumns = `id, user_id, email, otp_hash, expires_at, verified_at, created_at, attempts`

func (r *otpRepo) Replace(ctx context.Context, ch domain.OTPChallenge, now time.Time) error {
	if r.root != nil {
		return r.root.WithTx(ctx, func(tx store.Tx) error {
			return tx.OTPChallenges().Replace(ctx, ch, now)
		})
	}

	// 1. Expire every still-valid challenge. Only rows with expires_at > now
	// are touched, so expiry never moves later.
	if _, err := r.q.ExecContext(ctx, `
		UPDATE otp_challenges
		SET expires_at = ?
		WHERE user_id = ? AND verified_at IS NULL AND expires_at > ?`,
		toUnix(now), ch.UserID, toUnix(now),
	); err != nil {
		return fmt.Errorf("invalidate challenges: %w", err)
	}

	// 2. Insert the replacement
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO otp_challenges (`+otpColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, ?, 0)`,
		ch.ID, ch.UserID, ch.Email, ch.OTPHash, toUnix(ch.ExpiresAt), toUnix(ch.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert challenge: %w", mapConstraint(err))
	}

	return nil
}

func (r *otpRepo) LatestValid(ctx context.Context, userID string, now time.Time) (domain.OTPChallenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+otpColumns+`
		FROM otp_challenges
		WHERE user_id = ? AND verified_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		userID, toUnix(now),
	)
	return scanChallenge(row)
}

func (r *otpRepo) ReserveAttempt(ctx context.Context, id string, expiresAt time.Time, maxAttempts int) (int, bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		UPDATE otp_challenges
		SET attempts = attempts + 1
		WHERE id = ? AND verified_at IS NULL AND expires_at = ? AND attempts < ?
		RETURNING attempts`,
		id, toUnix(expiresAt), maxAttempts,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve attempt: %w", err)
	}
	return n, true, nil
}

func (r *otpRepo) MarkVerified(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE otp_challenges
		SET verified_at = ?
		WHERE id = ? AND verified_at IS NULL AND expires_at = ?`,
		toUnix(now), id, toUnix(expiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *otpRepo) Expire(ctx context.Context, id string, expiresAt, now time.Time) error {
	if _, err := r.q.ExecContext(ctx, `
		UPDATE otp_challenges
		SET expires_at = ?
		WHERE id = ? AND verified_at IS NULL AND expires_at = ? AND expires_at > ?`,
		toUnix(now), id, toUnix(expiresAt), toUnix(now),
	); err != nil {
		return fmt.Errorf("expire challenge: %w", err)
	}
	return nil
}

func (r *otpRepo) GetChallenge(ctx context.Context, id string) (domain.OTPChallenge, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+otpColumns+` FROM otp_challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

func (r *otpRepo) Stats(ctx context.Context, now time.Time) (domain.OTPStats, error) {
	var s domain.OTPStats
	err := r.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN verified_at IS NULL AND expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verified_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM otp_challenges`,
		toUnix(now),
	).Scan(&s.Total, &s.Valid, &s.Verified)
	if err != nil {
		return domain.OTPStats{}, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (domain.OTPChallenge, error) {
	var (
		c                    domain.OTPChallenge
		expiresAt, createdAt int64
		verifiedAt           sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.OTPHash, &expiresAt, &verifiedAt, &createdAt, &c.Attempts); err != nil {
		return domain.OTPChallenge{}, mapNotFound(err)
	}

	c.ExpiresAt = fromUnix(expiresAt)
	c.CreatedAt = fromUnix(createdAt)
	c.VerifiedAt = mapNullTimePtr(verifiedAt)
	return c, nil
}
