package models

import "time"

// Platform identifiers for linked gaming accounts.
const (
	PlatformSteam       = "steam"
	PlatformPlayStation = "playstation"
	PlatformXbox        = "xbox"
)

// ValidPlatform reports whether s names a supported platform.
func ValidPlatform(s string) bool {
	switch s {
	case PlatformSteam, PlatformPlayStation, PlatformXbox:
		return true
	}
	return false
}

// LinkedAccount ties a local user to an external gaming-platform identity.
//
// A user can link each platform once, and an external identity can belong
// to at most one local user; both rules are enforced by the unique indexes
// so that two concurrent link attempts cannot both commit.
type LinkedAccount struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	UserID           int64  `gorm:"uniqueIndex:idx_user_platform;index"`
	Platform         string `gorm:"size:20;uniqueIndex:idx_user_platform;uniqueIndex:idx_platform_user"`
	PlatformUserID   string `gorm:"size:255;uniqueIndex:idx_platform_user"`
	PlatformUsername string `gorm:"size:255"`

	// Steam is tokenless (the server's Web-API key is used instead), so
	// these stay empty for steam rows. For Xbox the access token column
	// holds the XSTS token because that is what the titles API consumes.
	AccessToken    string `gorm:"size:4000"`
	RefreshToken   string `gorm:"size:4000"`
	TokenExpiresAt *time.Time

	ConnectedAt  time.Time
	LastSyncedAt *time.Time
}

// tokenExpirySlack treats tokens expiring this soon as already expired,
// so a sync never starts with a token that dies mid-flight.
const tokenExpirySlack = 5 * time.Minute

// IsTokenExpired reports whether the access token is expired or about to
// expire. Accounts without an expiry (Steam) never report expired.
func (a *LinkedAccount) IsTokenExpired() bool {
	if a.TokenExpiresAt == nil {
		return false
	}
	return time.Now().Add(tokenExpirySlack).After(*a.TokenExpiresAt)
}
