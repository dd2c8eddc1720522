package models

import "time"

// GameLibrary is one imported library entry: a (user, game, source
// account) triple with playtime and achievement data. The same catalog
// game may appear once per linked platform; total playtime is the sum
// across entries. Entries are written only by the sync pipeline.
type GameLibrary struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	UserID          int64  `gorm:"uniqueIndex:idx_user_game_account;index"`
	GameID          int64  `gorm:"uniqueIndex:idx_user_game_account"`
	LinkedAccountID *int64 `gorm:"uniqueIndex:idx_user_game_account"`

	PlaytimeHours     float64
	AchievementsCount int
	LastPlayedAt      *time.Time
	ImportedAt        time.Time
}
