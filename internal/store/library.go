package store

import (
	"context"
	"errors"
	"time"

	"github.com/questlog/questlog/internal/db/models"
	"gorm.io/gorm"
)

// Library persists imported game-library entries.
type Library struct {
	db *gorm.DB
}

func NewLibrary(db *gorm.DB) *Library {
	return &Library{db: db}
}

// Upsert creates or updates the entry keyed by (user, game, linked
// account). Returns true when a new entry was created.
func (s *Library) Upsert(ctx context.Context, userID, gameID int64, linkedAccountID *int64, playtimeHours float64, achievementsCount int, lastPlayedAt *time.Time) (bool, error) {
	var existing models.GameLibrary
	q := s.db.WithContext(ctx).Where("user_id = ? AND game_id = ?", userID, gameID)
	if linkedAccountID != nil {
		q = q.Where("linked_account_id = ?", *linkedAccountID)
	} else {
		q = q.Where("linked_account_id IS NULL")
	}
	err := q.First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry := models.GameLibrary{
			UserID:            userID,
			GameID:            gameID,
			LinkedAccountID:   linkedAccountID,
			PlaytimeHours:     playtimeHours,
			AchievementsCount: achievementsCount,
			LastPlayedAt:      lastPlayedAt,
			ImportedAt:        time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	existing.PlaytimeHours = playtimeHours
	existing.AchievementsCount = achievementsCount
	if lastPlayedAt != nil {
		existing.LastPlayedAt = lastPlayedAt
	}
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return false, err
	}
	return false, nil
}

// ForUser lists a user's library ordered by playtime, optionally limited
// to one linked account.
func (s *Library) ForUser(ctx context.Context, userID int64, linkedAccountID *int64, limit, offset int) ([]models.GameLibrary, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if linkedAccountID != nil {
		q = q.Where("linked_account_id = ?", *linkedAccountID)
	}
	var entries []models.GameLibrary
	err := q.Order("playtime_hours DESC").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, err
}

func (s *Library) CountForUser(ctx context.Context, userID int64, linkedAccountID *int64) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.GameLibrary{}).Where("user_id = ?", userID)
	if linkedAccountID != nil {
		q = q.Where("linked_account_id = ?", *linkedAccountID)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// GamePlaytime sums playtime for one game across all of a user's
// platform entries.
func (s *Library) GamePlaytime(ctx context.Context, userID, gameID int64) (float64, error) {
	var total *float64
	err := s.db.WithContext(ctx).
		Model(&models.GameLibrary{}).
		Select("SUM(playtime_hours)").
		Where("user_id = ? AND game_id = ?", userID, gameID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// DeleteByLinkedAccount removes every entry imported from one linked
// account. Called on unlink; entries from other platforms stay.
func (s *Library) DeleteByLinkedAccount(ctx context.Context, linkedAccountID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("linked_account_id = ?", linkedAccountID).
		Delete(&models.GameLibrary{})
	return res.RowsAffected, res.Error
}
