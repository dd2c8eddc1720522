// Package library imports owned games, playtime and achievements from
// linked platform accounts into the local game library.
package library

import (
	"context"
	"errors"
	"log"

	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/platform"
	"github.com/questlog/questlog/internal/store"
)

// Summary reports the outcome of one sync run. Errors holds one
// "{platform}: {message}" entry per failed platform; a failed platform
// never aborts the others.
type Summary struct {
	SyncedPlatforms []string `json:"synced_platforms"`
	TotalGames      int      `json:"total_games"`
	NewGames        int      `json:"new_games"`
	UpdatedGames    int      `json:"updated_games"`
	Errors          []string `json:"errors"`
}

// ProgressFunc receives running counts while a sync is underway.
type ProgressFunc func(totalGames, syncedGames, failedGames int)

// SteamLibrary fetches a Steam user's owned games.
type SteamLibrary interface {
	GetOwnedGames(ctx context.Context, steamID string) ([]platform.Title, error)
}

// PlayStationLibrary fetches a PSN user's trophy titles.
type PlayStationLibrary interface {
	GetUserTitles(ctx context.Context, accessToken, accountID string) ([]platform.Title, error)
}

// XboxLibrary fetches an Xbox user's title history.
type XboxLibrary interface {
	GetUserTitles(ctx context.Context, xuid, xstsToken string) ([]platform.Title, error)
}

// TokenRefresher renews an account's tokens before a sync touches the
// platform API.
type TokenRefresher interface {
	RefreshTokenIfNeeded(ctx context.Context, acct *models.LinkedAccount) (*models.LinkedAccount, error)
}

// Catalog imports games from the external catalog when a platform title
// has no local match.
type Catalog interface {
	SearchAndImport(ctx context.Context, name string) (*models.Game, error)
}

// Service runs library syncs and serves library reads.
type Service struct {
	accounts *store.LinkedAccounts
	library  *store.Library
	games    *store.Games

	refresher TokenRefresher
	catalog   Catalog
	steam     SteamLibrary
	psn       PlayStationLibrary
	xbox      XboxLibrary
}

func NewService(accounts *store.LinkedAccounts, library *store.Library, games *store.Games, refresher TokenRefresher, catalog Catalog, steam SteamLibrary, psn PlayStationLibrary, xbox XboxLibrary) *Service {
	return &Service{
		accounts:  accounts,
		library:   library,
		games:     games,
		refresher: refresher,
		catalog:   catalog,
		steam:     steam,
		psn:       psn,
		xbox:      xbox,
	}
}

// SyncUserLibrary syncs one platform, or every linked platform when
// platformName is empty. Platforms run sequentially; a failure on one is
// recorded in the summary and the rest still run. A user with nothing
// linked gets a zero summary, not an error. Context cancellation aborts
// between titles and returns ctx.Err().
func (s *Service) SyncUserLibrary(ctx context.Context, userID int64, platformName string, progress ProgressFunc) (*Summary, error) {
	var platforms []string
	if platformName != "" {
		if !models.ValidPlatform(platformName) {
			return nil, errs.Validationf("invalid platform %q", platformName)
		}
		platforms = []string{platformName}
	} else {
		accounts, err := s.accounts.ForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, acct := range accounts {
			platforms = append(platforms, acct.Platform)
		}
	}

	summary := &Summary{
		SyncedPlatforms: []string{},
		Errors:          []string{},
	}
	if len(platforms) == 0 {
		log.Printf("[Sync] User %d has no linked platforms", userID)
		return summary, nil
	}

	failed := 0
	for _, plat := range platforms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Per-title reports add this platform's running counts on top
		// of what earlier platforms already contributed.
		baseTotal := summary.TotalGames
		baseSynced := summary.NewGames + summary.UpdatedGames
		report := func(total, synced int) {
			if progress != nil {
				progress(baseTotal+total, baseSynced+synced, failed)
			}
		}

		total, created, updated, err := s.syncPlatform(ctx, userID, plat, report)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			summary.Errors = append(summary.Errors, plat+": "+err.Error())
			failed++
			log.Printf("[Sync] Platform %s failed for user %d: %v", plat, userID, err)
		} else {
			summary.SyncedPlatforms = append(summary.SyncedPlatforms, plat)
			summary.TotalGames += total
			summary.NewGames += created
			summary.UpdatedGames += updated
		}
		if progress != nil {
			progress(summary.TotalGames, summary.NewGames+summary.UpdatedGames, failed)
		}
	}

	log.Printf("[Sync] User %d done: %d platforms, %d games (%d new, %d updated), %d errors",
		userID, len(summary.SyncedPlatforms), summary.TotalGames, summary.NewGames, summary.UpdatedGames, len(summary.Errors))
	return summary, nil
}

// syncPlatform imports one platform's titles for a user. report is
// called after each title with the platform's title count and the number
// imported so far.
func (s *Service) syncPlatform(ctx context.Context, userID int64, platformName string, report func(total, synced int)) (total, created, updated int, err error) {
	acct, err := s.accounts.ByUserAndPlatform(ctx, userID, platformName)
	if err != nil {
		return 0, 0, 0, err
	}
	if acct == nil {
		return 0, 0, 0, errs.NotFoundf("no %s account linked", platformName)
	}

	acct, err = s.refresher.RefreshTokenIfNeeded(ctx, acct)
	if err != nil {
		return 0, 0, 0, err
	}

	titles, err := s.fetchTitles(ctx, acct)
	if err != nil {
		return 0, 0, 0, errs.Externalf("failed to fetch games from %s", platformName)
	}
	if len(titles) == 0 {
		log.Printf("[Sync] No games found on %s for user %d", platformName, userID)
		return 0, 0, 0, nil
	}

	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, err
		}
		wasCreated, imported := s.importTitle(ctx, userID, acct.ID, platformName, title)
		if wasCreated {
			created++
		} else if imported {
			updated++
		}
		report(len(titles), created+updated)
	}

	if err := s.accounts.TouchSyncTime(ctx, acct.ID); err != nil {
		log.Printf("[Sync] Failed to stamp sync time for account %d: %v", acct.ID, err)
	}

	log.Printf("[Sync] %s synced for user %d: %d titles, %d new, %d updated",
		platformName, userID, len(titles), created, updated)
	return len(titles), created, updated, nil
}

// importTitle matches and upserts one platform title. imported is false
// when the title was skipped (no match, or a per-title failure that the
// sync tolerates); wasCreated distinguishes new entries from refreshes.
func (s *Service) importTitle(ctx context.Context, userID, acctID int64, platformName string, title platform.Title) (wasCreated, imported bool) {
	game, err := s.matchTitle(ctx, title)
	if err != nil {
		log.Printf("[Sync] Match of %q failed: %v", title.Name, err)
		return false, false
	}
	if game == nil {
		// No local or catalog match; the title stays out of the
		// library until the catalog learns about it.
		return false, false
	}

	created, err := s.library.Upsert(ctx, userID, game.ID, &acctID,
		title.PlaytimeHours,
		platform.AchievementsEarned(platformName, title),
		title.LastPlayedAt)
	if err != nil {
		log.Printf("[Sync] Upsert of %q failed: %v", title.Name, err)
		return false, false
	}
	return created, true
}

func (s *Service) fetchTitles(ctx context.Context, acct *models.LinkedAccount) ([]platform.Title, error) {
	switch acct.Platform {
	case models.PlatformSteam:
		return s.steam.GetOwnedGames(ctx, acct.PlatformUserID)
	case models.PlatformPlayStation:
		return s.psn.GetUserTitles(ctx, acct.AccessToken, acct.PlatformUserID)
	case models.PlatformXbox:
		// The access-token column holds the XSTS token for Xbox rows.
		return s.xbox.GetUserTitles(ctx, acct.PlatformUserID, acct.AccessToken)
	}
	return nil, errs.Validationf("unsupported platform %q", acct.Platform)
}

// matchTitle resolves a platform title to a local game, importing from
// the external catalog when the name is unknown locally. Unmatched
// titles return nil without error.
func (s *Service) matchTitle(ctx context.Context, title platform.Title) (*models.Game, error) {
	if title.Name == "" {
		return nil, nil
	}

	games, err := s.games.SearchByName(ctx, title.Name, 1)
	if err != nil {
		return nil, err
	}
	if len(games) > 0 {
		return &games[0], nil
	}

	game, err := s.catalog.SearchAndImport(ctx, title.Name)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Printf("[Sync] No catalog match for %q", title.Name)
			return nil, nil
		}
		return nil, err
	}
	return game, nil
}

// UserLibrary lists a user's library entries, optionally filtered to one
// platform, with the total count for pagination.
func (s *Service) UserLibrary(ctx context.Context, userID int64, platformName string, limit, offset int) ([]models.GameLibrary, int64, error) {
	var linkedAccountID *int64
	if platformName != "" {
		if !models.ValidPlatform(platformName) {
			return nil, 0, errs.Validationf("invalid platform %q", platformName)
		}
		acct, err := s.accounts.ByUserAndPlatform(ctx, userID, platformName)
		if err != nil {
			return nil, 0, err
		}
		if acct != nil {
			linkedAccountID = &acct.ID
		}
	}

	entries, err := s.library.ForUser(ctx, userID, linkedAccountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.library.CountForUser(ctx, userID, linkedAccountID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GamePlaytime sums a user's playtime for one game across platforms.
func (s *Service) GamePlaytime(ctx context.Context, userID, gameID int64) (float64, error) {
	return s.library.GamePlaytime(ctx, userID, gameID)
}
