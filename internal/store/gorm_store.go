package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore persists refresh tokens in Postgres. Rotation relies on the
// unique index on token_hash plus a conditional UPDATE, so the database
// serializes racing callers; no advisory locks needed.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	return &record, nil
}

func (s *GormStore) Create(ctx context.Context, record *models.RefreshToken) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *GormStore) Rotate(ctx context.Context, oldHash string, successor *models.RefreshToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reason := models.ReasonRotated
		res := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND revoked = false", oldHash).
			Updates(map[string]interface{}{"revoked": true, "revoked_reason": reason})
		if res.Error != nil {
			return fmt.Errorf("failed to rotate refresh token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRotationConflict
		}
		if err := tx.Create(successor).Error; err != nil {
			return fmt.Errorf("failed to store successor token: %w", err)
		}
		return nil
	})
}

func (s *GormStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = false AND expires_at > ?", userID, time.Now()).
		Updates(map[string]interface{}{"revoked": true, "revoked_reason": reason})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to revoke tokens for user: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Revoke(ctx context.Context, tokenHash string, reason string) error {
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = false", tokenHash).
		Updates(map[string]interface{}{"revoked": true, "revoked_reason": reason}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) CountActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = false AND expires_at > ?", userID, now).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active tokens: %w", err)
	}
	return count, nil
}
