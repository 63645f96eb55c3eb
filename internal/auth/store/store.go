package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite) implement
// this. It exposes sub-repositories to keep concerns tidy and testable, and so
// transactions cannot be nested by accident.
type Store interface {
	OTPChallenges() OTPChallenges
	Rights() Rights

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// fn must only use the Tx it is given; the driver may hold a single
	// connection for the whole transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// OTPChallenges persists one-time passcode challenges. Records are never
// deleted; invalidation moves expires_at back to the invalidation time.
type OTPChallenges interface {
	// Replace expires every valid challenge of ch.UserID as of now and stores
	// ch, atomically. Expiry timestamps are only ever moved earlier.
	Replace(ctx context.Context, ch domain.OTPChallenge, now time.Time) error

	// LatestValid returns the newest challenge of the user that is unverified
	// and not expired at now, or ErrNotFound.
	LatestValid(ctx context.Context, userID string, now time.Time) (domain.OTPChallenge, error)

	// The calls below take the expiresAt that was read with the challenge and
	// only apply while the stored value still matches it, so a challenge that
	// was superseded or exhausted in between is left alone.

	// ReserveAttempt counts one verification try against an unverified
	// challenge and returns the new count. It reports false, without error,
	// when maxAttempts tries were already made or the challenge changed.
	ReserveAttempt(ctx context.Context, id string, expiresAt time.Time, maxAttempts int) (int, bool, error)

	// MarkVerified stamps verified_at on an unverified challenge. It reports
	// false, without error, when the challenge was already verified or changed.
	MarkVerified(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)

	// Expire moves expires_at back to now on a challenge that is still
	// unverified and valid. Anything else is a no-op.
	Expire(ctx context.Context, id string, expiresAt, now time.Time) error

	// GetChallenge returns a challenge by id regardless of state.
	GetChallenge(ctx context.Context, id string) (domain.OTPChallenge, error)

	// Stats counts stored challenges for housekeeping.
	Stats(ctx context.Context, now time.Time) (domain.OTPStats, error)
}

// Rights is the role/permission catalogue and the user assignments on top of it.
type Rights interface {
	// RoleNamesForUser returns the distinct role names assigned to userID.
	RoleNamesForUser(ctx context.Context, userID string) ([]string, error)

	// PermissionNamesForUser returns the distinct permission names granted to
	// userID through any of their roles.
	PermissionNamesForUser(ctx context.Context, userID string) ([]string, error)

	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	GetPermissionByName(ctx context.Context, name string) (domain.Permission, error)

	// ListRoles returns all roles ordered by name.
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a role; duplicate names return ErrAlreadyExists.
	CreateRole(ctx context.Context, r domain.Role) error

	// CreatePermission inserts a permission; duplicate names return ErrAlreadyExists.
	CreatePermission(ctx context.Context, p domain.Permission) error

	// GrantPermission links a permission to a role. Repeat grants are no-ops.
	GrantPermission(ctx context.Context, roleID, permissionID string) error

	// AssignRole links a role to a user. Repeat assignments are no-ops.
	AssignRole(ctx context.Context, userID, roleID string, now time.Time) error

	// IsEmpty returns true if there are no roles.
	IsEmpty(ctx context.Context) (bool, error)
}
