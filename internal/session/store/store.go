// Package store persists sessions and enforces the per-(user, device class)
// single-session policy. Upsert is the concurrency-critical operation: after
// it returns, exactly one session exists for the pair, and tokens bound to a
// superseded session immediately fail validation. Each backend serializes
// same-pair writers on its own primitive (lock table, conditional SQL write,
// Lua script); unrelated pairs never contend on a global lock.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/session/domain"
)

// ErrNotFound is returned by updates against a session that no longer
// exists (superseded, revoked, or expired).
var ErrNotFound = errors.New("session not found")

// Store is the session persistence contract.
type Store interface {
	// Upsert atomically installs s as the only session for
	// (s.UserID, s.DeviceClass), superseding any prior session of that pair.
	// Sessions of other classes or users are untouched. Returns the id of
	// the evicted session, or "" when none existed. Under concurrent upserts
	// of the same pair the last writer wins; duplicates never survive.
	Upsert(ctx context.Context, s *domain.Session) (evictedID string, err error)

	// Get returns the live session for id, or nil if it does not exist or
	// has expired. It returns an error only for backend failures.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// IsValid reports whether the session exists and has not expired.
	IsValid(ctx context.Context, id string) (bool, error)

	// Revoke deletes the session. Revoking an absent session is a no-op.
	Revoke(ctx context.Context, id string) error

	// UpdateRefreshToken installs a rotated refresh-token hash and extends
	// the session's refresh window. Returns ErrNotFound if the session is
	// gone.
	UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, expiresAt time.Time) error

	// UpdateLastSeen records activity on the session. Best-effort; absent
	// sessions are a no-op.
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}
