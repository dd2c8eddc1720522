package models

import "time"

// User is a platform member. Registration and login live in the auth
// front; everything below it only needs the id.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"uniqueIndex;size:50"`
	Email     string `gorm:"uniqueIndex;size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
