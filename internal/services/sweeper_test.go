package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore errors on DeleteExpired; everything else delegates to the
// in-memory store.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, errors.New("connection lost")
}

func seedToken(t *testing.T, tokens *store.MemoryStore, userID uuid.UUID, expiresAt time.Time, revoked bool) {
	t.Helper()
	value, err := IssueRefreshToken()
	require.NoError(t, err)
	record := &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(value),
		ExpiresAt: expiresAt,
		Revoked:   revoked,
	}
	require.NoError(t, tokens.Create(context.Background(), record))
}

func TestSweeperDeletesOnlyExpired(t *testing.T) {
	tokens := store.NewMemoryStore()
	userID := uuid.New()
	now := time.Now()

	seedToken(t, tokens, userID, now.Add(-time.Hour), false)
	seedToken(t, tokens, userID, now.Add(-time.Minute), true)
	seedToken(t, tokens, userID, now.Add(time.Hour), false)

	NewSweeper(tokens, time.Hour).RunOnce(context.Background())

	// The unexpired active record survives.
	active, err := tokens.CountActiveForUser(context.Background(), userID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	deleted, err := tokens.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted, "sweep left expired records behind")
}

func TestSweeperNoOpWhenNothingExpired(t *testing.T) {
	tokens := store.NewMemoryStore()
	userID := uuid.New()
	seedToken(t, tokens, userID, time.Now().Add(time.Hour), false)

	sweeper := NewSweeper(tokens, time.Hour)
	sweeper.RunOnce(context.Background())
	sweeper.RunOnce(context.Background())

	active, err := tokens.CountActiveForUser(context.Background(), userID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestSweeperSurvivesStoreFailure(t *testing.T) {
	sweeper := NewSweeper(&failingStore{store.NewMemoryStore()}, time.Hour)

	// Must log and return, not panic; the next tick gets another chance.
	sweeper.RunOnce(context.Background())
}

func TestSweeperStartStops(t *testing.T) {
	tokens := store.NewMemoryStore()
	seedToken(t, tokens, uuid.New(), time.Now().Add(-time.Hour), false)

	done := make(chan struct{})
	sweeper := NewSweeper(tokens, 10*time.Millisecond)
	sweeper.Start(done)

	assert.Eventually(t, func() bool {
		deleted, err := tokens.DeleteExpired(context.Background(), time.Now())
		return err == nil && deleted == 0
	}, time.Second, 10*time.Millisecond)

	close(done)
}
