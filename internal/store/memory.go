package store

import (
	"context"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory RefreshTokenStore. It exists
// for tests and gives the same conditional-transition semantics as the
// Postgres store: Rotate succeeds for exactly one of any set of racing
// callers.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.RefreshToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.RefreshToken)}
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, record *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	copied := *record
	s.records[record.TokenHash] = &copied
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, oldHash string, successor *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[oldHash]
	if !ok || record.Revoked {
		return ErrRotationConflict
	}
	reason := models.ReasonRotated
	record.Revoked = true
	record.RevokedReason = &reason

	if successor.ID == uuid.Nil {
		successor.ID = uuid.New()
	}
	if successor.CreatedAt.IsZero() {
		successor.CreatedAt = time.Now()
	}
	copied := *successor
	s.records[successor.TokenHash] = &copied
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID uuid.UUID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var affected int64
	for _, record := range s.records {
		if record.UserID == userID && !record.Revoked && record.ExpiresAt.After(now) {
			r := reason
			record.Revoked = true
			record.RevokedReason = &r
			affected++
		}
	}
	return affected, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenHash string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tokenHash]
	if !ok || record.Revoked {
		return nil
	}
	r := reason
	record.Revoked = true
	record.RevokedReason = &r
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for hash, record := range s.records {
		if record.ExpiresAt.Before(now) {
			delete(s.records, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) CountActiveForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, record := range s.records {
		if record.UserID == userID && record.Usable(now) {
			count++
		}
	}
	return count, nil
}
