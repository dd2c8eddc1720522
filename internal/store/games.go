package store

import (
	"context"
	"errors"

	"github.com/questlog/questlog/internal/db/models"
	"gorm.io/gorm"
)

// Games persists the local game catalog.
type Games struct {
	db *gorm.DB
}

func NewGames(db *gorm.DB) *Games {
	return &Games{db: db}
}

func (s *Games) Create(ctx context.Context, game *models.Game) error {
	return s.db.WithContext(ctx).Create(game).Error
}

// SearchByName does a case-insensitive substring match ordered by rating
// count, the same best-effort match the sync pipeline relies on.
func (s *Games) SearchByName(ctx context.Context, name string, limit int) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).
		Where("name LIKE ? COLLATE NOCASE", "%"+name+"%").
		Order("rating_count DESC").
		Limit(limit).
		Find(&games).Error
	return games, err
}

func (s *Games) ByIGDBID(ctx context.Context, igdbID int64) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).First(&game, "igdb_id = ?", igdbID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *Games) BySlug(ctx context.Context, slug string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).First(&game, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}
