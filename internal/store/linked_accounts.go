// Package store holds the gorm-backed data access layer. Each store is a
// thin struct over *gorm.DB; transactional behavior is gorm's default
// (one statement, commit-on-success).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/questlog/questlog/internal/db/models"
	"gorm.io/gorm"
)

// LinkedAccounts persists gaming-platform account links.
type LinkedAccounts struct {
	db *gorm.DB
}

func NewLinkedAccounts(db *gorm.DB) *LinkedAccounts {
	return &LinkedAccounts{db: db}
}

func (s *LinkedAccounts) Create(ctx context.Context, acct *models.LinkedAccount) error {
	if acct.ConnectedAt.IsZero() {
		acct.ConnectedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(acct).Error
}

func (s *LinkedAccounts) ByID(ctx context.Context, id int64) (*models.LinkedAccount, error) {
	var acct models.LinkedAccount
	err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ByUserAndPlatform returns the user's link for one platform, or nil.
func (s *LinkedAccounts) ByUserAndPlatform(ctx context.Context, userID int64, platform string) (*models.LinkedAccount, error) {
	var acct models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ByPlatformUser returns whichever local user owns an external identity,
// or nil. Used for the identity-collision check during linking.
func (s *LinkedAccounts) ByPlatformUser(ctx context.Context, platform, platformUserID string) (*models.LinkedAccount, error) {
	var acct models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("platform = ? AND platform_user_id = ?", platform, platformUserID).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *LinkedAccounts) ForUser(ctx context.Context, userID int64) ([]models.LinkedAccount, error) {
	var accounts []models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("connected_at DESC").
		Find(&accounts).Error
	return accounts, err
}

func (s *LinkedAccounts) Save(ctx context.Context, acct *models.LinkedAccount) error {
	return s.db.WithContext(ctx).Save(acct).Error
}

// UpdateTokens persists a fresh token set for an account.
func (s *LinkedAccounts) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	updates := map[string]any{"access_token": accessToken}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	if expiresAt != nil {
		updates["token_expires_at"] = expiresAt
	}
	return s.db.WithContext(ctx).
		Model(&models.LinkedAccount{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TouchSyncTime stamps last_synced_at with the current time.
func (s *LinkedAccounts) TouchSyncTime(ctx context.Context, id int64) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.LinkedAccount{}).
		Where("id = ?", id).
		Update("last_synced_at", &now).Error
}

// Delete removes a user's link for one platform. Returns false if there
// was nothing to delete.
func (s *LinkedAccounts) Delete(ctx context.Context, userID int64, platform string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&models.LinkedAccount{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
