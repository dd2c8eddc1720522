// Package platform implements the per-platform authentication handshakes
// and library fetch calls for Steam, PlayStation Network and Xbox Live.
// The three protocols diverge enough (OpenID 2.0, plain OAuth2, and the
// Microsoft→Xbox Live→XSTS chain) that each client is its own struct;
// they share the normalized Title shape and the HTTP plumbing.
package platform

import "time"

// TrophyCounts holds PSN earned-trophy tiers for one title.
type TrophyCounts struct {
	Bronze   int
	Silver   int
	Gold     int
	Platinum int
}

func (t TrophyCounts) Total() int {
	return t.Bronze + t.Silver + t.Gold + t.Platinum
}

// Title is one owned game normalized across platforms.
type Title struct {
	PlatformGameID string
	Name           string
	PlaytimeHours  float64

	// Xbox reports an aggregated count; PSN reports trophy tiers; Steam
	// reports neither in the owned-games call.
	AchievementsEarned int
	AchievementsTotal  int
	EarnedTrophies     TrophyCounts

	LastPlayedAt *time.Time
}

// AchievementsEarned applies the platform's counting rule to a title.
func AchievementsEarned(platform string, t Title) int {
	switch platform {
	case "playstation":
		return t.EarnedTrophies.Total()
	case "xbox":
		return t.AchievementsEarned
	}
	// Steam's owned-games call carries no achievement data; counting
	// would cost one extra API call per title.
	return 0
}

// TokenBundle is the result of a successful code exchange or refresh.
// The Xbox fields are empty for PSN.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time

	XboxToken string
	XSTSToken string
	XUID      string
	Gamertag  string
}

// Profile is the platform-side identity of a linked user.
type Profile struct {
	ID        string
	Username  string
	AvatarURL string
}

const defaultTimeout = 10 * time.Second
const listTimeout = 30 * time.Second
