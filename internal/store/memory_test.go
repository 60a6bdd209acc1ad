package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(userID uuid.UUID, hash string, expiresAt time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
	}
}

func TestMemoryStoreFindAndCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.FindByTokenHash(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Create(ctx, newRecord(userID, "hash-1", time.Now().Add(time.Hour))))

	record, err := s.FindByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.False(t, record.Revoked)
}

func TestMemoryStoreRotateWinsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, s.Create(ctx, newRecord(userID, "old", time.Now().Add(time.Hour))))

	require.NoError(t, s.Rotate(ctx, "old", newRecord(userID, "new-1", time.Now().Add(time.Hour))))

	err := s.Rotate(ctx, "old", newRecord(userID, "new-2", time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, ErrRotationConflict)

	old, err := s.FindByTokenHash(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	require.NotNil(t, old.RevokedReason)
	assert.Equal(t, models.ReasonRotated, *old.RevokedReason)

	// The loser's successor was never inserted.
	_, err = s.FindByTokenHash(ctx, "new-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRotateConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, s.Create(ctx, newRecord(userID, "contested", time.Now().Add(time.Hour))))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successor := newRecord(userID, fmt.Sprintf("succ-%d", i), time.Now().Add(time.Hour))
			errs[i] = s.Rotate(ctx, "contested", successor)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrRotationConflict)
		}
	}
	assert.Equal(t, 1, wins)

	active, err := s.CountActiveForUser(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestMemoryStoreRotateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.Rotate(context.Background(), "ghost", newRecord(uuid.New(), "x", time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, ErrRotationConflict)
}

func TestMemoryStoreRevokeAllForUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()
	now := time.Now()

	require.NoError(t, s.Create(ctx, newRecord(userID, "a", now.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, newRecord(userID, "b", now.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, newRecord(userID, "expired", now.Add(-time.Hour))))
	require.NoError(t, s.Create(ctx, newRecord(other, "c", now.Add(time.Hour))))

	affected, err := s.RevokeAllForUser(ctx, userID, models.ReasonReuse)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected, "expired records are left for the sweeper")

	again, err := s.RevokeAllForUser(ctx, userID, models.ReasonReuse)
	require.NoError(t, err)
	assert.EqualValues(t, 0, again)

	// The other user's token is untouched.
	active, err := s.CountActiveForUser(ctx, other, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestMemoryStoreRevokeSingle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, s.Create(ctx, newRecord(userID, "a", time.Now().Add(time.Hour))))

	require.NoError(t, s.Revoke(ctx, "a", models.ReasonLogout))
	record, err := s.FindByTokenHash(ctx, "a")
	require.NoError(t, err)
	assert.True(t, record.Revoked)

	// Missing and already revoked are both silent no-ops.
	require.NoError(t, s.Revoke(ctx, "a", models.ReasonLogout))
	require.NoError(t, s.Revoke(ctx, "missing", models.ReasonLogout))
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	require.NoError(t, s.Create(ctx, newRecord(userID, "expired-active", now.Add(-time.Minute))))
	require.NoError(t, s.Create(ctx, newRecord(userID, "live", now.Add(time.Hour))))
	revoked := newRecord(userID, "expired-revoked", now.Add(-time.Minute))
	revoked.Revoked = true
	require.NoError(t, s.Create(ctx, revoked))

	deleted, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	_, err = s.FindByTokenHash(ctx, "live")
	require.NoError(t, err)

	deleted, err = s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)
}
