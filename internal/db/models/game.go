package models

import "time"

// Game is a catalog record sourced from IGDB (primary) or RAWG
// (fallback), distinct from a platform's owned title.
type Game struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	IGDBID       *int64 `gorm:"column:igdb_id;uniqueIndex"`
	RAWGID       *int64 `gorm:"column:rawg_id;index"`
	Name         string `gorm:"size:255;index"`
	Slug         string `gorm:"size:255;uniqueIndex"`
	Summary      string
	CoverURL     string
	ReleaseDate  *time.Time
	Rating       float64 // 0-100
	RatingCount  int
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
