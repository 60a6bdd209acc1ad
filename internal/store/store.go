// Package store defines the persistence contract for refresh token
// records. The interface is deliberately narrow so the Postgres-backed
// implementation and the in-memory one used in tests stay interchangeable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("refresh token not found")

	// ErrRotationConflict means the conditional state transition matched no
	// active row: another caller already consumed the token, or it was
	// revoked. The caller must treat this as a reuse signal.
	ErrRotationConflict = errors.New("refresh token already consumed")
)

type RefreshTokenStore interface {
	// FindByTokenHash returns the record for the hashed opaque value, or
	// ErrNotFound. Revoked and expired records are returned too; deciding
	// what their state means is the caller's job.
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Create inserts a new lineage root (login).
	Create(ctx context.Context, record *models.RefreshToken) error

	// Rotate atomically marks the record identified by oldHash as rotated
	// and inserts its successor. The transition is conditional on the row
	// still being unrevoked; when two callers race, exactly one succeeds
	// and the other gets ErrRotationConflict.
	Rotate(ctx context.Context, oldHash string, successor *models.RefreshToken) error

	// RevokeAllForUser marks every unrevoked, unexpired record of the user
	// as revoked with the given reason. Idempotent; returns the number of
	// rows transitioned on this call.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason string) (int64, error)

	// Revoke marks a single record revoked. A no-op when the record is
	// already revoked or missing.
	Revoke(ctx context.Context, tokenHash string, reason string) error

	// DeleteExpired removes records whose expiry predates now, revoked or
	// not, and reports how many were purged.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// CountActiveForUser counts records that are still usable at now.
	CountActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}
