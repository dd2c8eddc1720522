package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/platform"
	"github.com/questlog/questlog/internal/store"
	"gorm.io/gorm"
)

type fixtures struct {
	db       *gorm.DB
	accounts *store.LinkedAccounts
	library  *store.Library
	games    *store.Games
}

func newFixtures(t *testing.T) *fixtures {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Game{}, &models.LinkedAccount{}, &models.GameLibrary{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return &fixtures{
		db:       db,
		accounts: store.NewLinkedAccounts(db),
		library:  store.NewLibrary(db),
		games:    store.NewGames(db),
	}
}

// passthroughRefresher returns accounts untouched.
type passthroughRefresher struct{}

func (passthroughRefresher) RefreshTokenIfNeeded(_ context.Context, acct *models.LinkedAccount) (*models.LinkedAccount, error) {
	return acct, nil
}

// stubCatalog imports a fixed game for any name, or errors.
type stubCatalog struct {
	games *store.Games
	err   error
}

func (c *stubCatalog) SearchAndImport(ctx context.Context, name string) (*models.Game, error) {
	if c.err != nil {
		return nil, c.err
	}
	game := &models.Game{Name: name, Slug: strings.ToLower(strings.ReplaceAll(name, " ", "-"))}
	if err := c.games.Create(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

type stubSteam struct {
	titles []platform.Title
	err    error
}

func (s *stubSteam) GetOwnedGames(context.Context, string) ([]platform.Title, error) {
	return s.titles, s.err
}

type stubPSN struct {
	titles []platform.Title
	err    error
}

func (s *stubPSN) GetUserTitles(context.Context, string, string) ([]platform.Title, error) {
	return s.titles, s.err
}

type stubXbox struct {
	titles []platform.Title
	err    error
}

func (s *stubXbox) GetUserTitles(context.Context, string, string) ([]platform.Title, error) {
	return s.titles, s.err
}

func newSyncService(f *fixtures, steam *stubSteam, psn *stubPSN, xbox *stubXbox) *Service {
	return NewService(f.accounts, f.library, f.games,
		passthroughRefresher{}, &stubCatalog{games: f.games}, steam, psn, xbox)
}

func linkAccount(t *testing.T, f *fixtures, userID int64, platformName, platformUserID string) *models.LinkedAccount {
	t.Helper()
	acct := &models.LinkedAccount{
		UserID:         userID,
		Platform:       platformName,
		PlatformUserID: platformUserID,
	}
	if err := f.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("link account: %v", err)
	}
	return acct
}

func TestSyncWithNoLinkedPlatforms(t *testing.T) {
	f := newFixtures(t)
	svc := newSyncService(f, &stubSteam{}, &stubPSN{}, &stubXbox{})

	summary, err := svc.SyncUserLibrary(context.Background(), 1, "", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(summary.SyncedPlatforms) != 0 || summary.TotalGames != 0 || len(summary.Errors) != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestSyncImportsSteamLibrary(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
		{PlatformGameID: "440", Name: "Team Fortress 2", PlaytimeHours: 100.5},
	}}
	svc := newSyncService(f, steam, &stubPSN{}, &stubXbox{})

	summary, err := svc.SyncUserLibrary(context.Background(), 1, "", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.TotalGames != 2 || summary.NewGames != 2 || summary.UpdatedGames != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.SyncedPlatforms) != 1 || summary.SyncedPlatforms[0] != "steam" {
		t.Fatalf("expected steam synced, got %v", summary.SyncedPlatforms)
	}

	entries, total, err := svc.UserLibrary(context.Background(), 1, "", 50, 0)
	if err != nil {
		t.Fatalf("read library: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", total)
	}
	// Ordered by playtime descending.
	if entries[0].PlaytimeHours != 100.5 {
		t.Fatalf("expected playtime ordering, got %v first", entries[0].PlaytimeHours)
	}

	acct, err := f.accounts.ByUserAndPlatform(context.Background(), 1, models.PlatformSteam)
	if err != nil || acct.LastSyncedAt == nil {
		t.Fatalf("expected sync time stamped, got %+v err %v", acct, err)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
	}}
	svc := newSyncService(f, steam, &stubPSN{}, &stubXbox{})

	if _, err := svc.SyncUserLibrary(context.Background(), 1, "", nil); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	steam.titles[0].PlaytimeHours = 3.5
	summary, err := svc.SyncUserLibrary(context.Background(), 1, "", nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if summary.NewGames != 0 || summary.UpdatedGames != 1 {
		t.Fatalf("expected update not duplicate, got %+v", summary)
	}

	entries, total, err := svc.UserLibrary(context.Background(), 1, "", 50, 0)
	if err != nil || total != 1 {
		t.Fatalf("expected single entry, got %d err %v", total, err)
	}
	if entries[0].PlaytimeHours != 3.5 {
		t.Fatalf("expected playtime refreshed, got %v", entries[0].PlaytimeHours)
	}
}

func TestSyncPlatformFailureIsIsolated(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")
	linkAccount(t, f, 1, models.PlatformPlayStation, "psn-abc")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
	}}
	psn := &stubPSN{err: errors.New("psn down")}
	svc := newSyncService(f, steam, psn, &stubXbox{})

	summary, err := svc.SyncUserLibrary(context.Background(), 1, "", nil)
	if err != nil {
		t.Fatalf("sync should not abort on one platform: %v", err)
	}
	if summary.TotalGames != 1 {
		t.Fatalf("expected steam games still imported, got %+v", summary)
	}
	if len(summary.Errors) != 1 || !strings.HasPrefix(summary.Errors[0], "playstation: ") {
		t.Fatalf("expected playstation error entry, got %v", summary.Errors)
	}
}

func TestSyncUsesPlatformAchievementRules(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformPlayStation, "psn-abc")
	linkAccount(t, f, 1, models.PlatformXbox, "xuid-1")

	psn := &stubPSN{titles: []platform.Title{{
		PlatformGameID: "NPWR001",
		Name:           "Bloodborne",
		EarnedTrophies: platform.TrophyCounts{Bronze: 10, Silver: 5, Gold: 2, Platinum: 1},
	}}}
	xbox := &stubXbox{titles: []platform.Title{{
		PlatformGameID:     "123",
		Name:               "Halo Infinite",
		AchievementsEarned: 37,
	}}}
	svc := newSyncService(f, &stubSteam{}, psn, xbox)

	if _, err := svc.SyncUserLibrary(context.Background(), 1, "", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entries, _, err := svc.UserLibrary(context.Background(), 1, "", 50, 0)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d err %v", len(entries), err)
	}
	counts := map[int]bool{}
	for _, e := range entries {
		counts[e.AchievementsCount] = true
	}
	if !counts[18] || !counts[37] {
		t.Fatalf("expected trophy sum 18 and xbox count 37, got %v", counts)
	}
}

func TestSyncSkipsUnmatchedTitles(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "1", Name: "Known Game", PlaytimeHours: 1},
		{PlatformGameID: "2", Name: "", PlaytimeHours: 9}, // nameless, unmatchable
	}}
	svc := NewService(f.accounts, f.library, f.games,
		passthroughRefresher{}, &stubCatalog{games: f.games}, steam, &stubPSN{}, &stubXbox{})

	summary, err := svc.SyncUserLibrary(context.Background(), 1, "steam", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.TotalGames != 2 || summary.NewGames != 1 {
		t.Fatalf("expected 1 of 2 imported, got %+v", summary)
	}
}

func TestSyncPrefersLocalMatch(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	existing := &models.Game{Name: "Portal 2", Slug: "portal-2"}
	if err := f.games.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed game: %v", err)
	}

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
	}}
	// Catalog errors; the local match must make it unnecessary.
	svc := NewService(f.accounts, f.library, f.games,
		passthroughRefresher{}, &stubCatalog{games: f.games, err: errors.New("catalog down")},
		steam, &stubPSN{}, &stubXbox{})

	summary, err := svc.SyncUserLibrary(context.Background(), 1, "steam", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.NewGames != 1 {
		t.Fatalf("expected local match used, got %+v", summary)
	}

	entries, _, _ := svc.UserLibrary(context.Background(), 1, "", 50, 0)
	if len(entries) != 1 || entries[0].GameID != existing.ID {
		t.Fatalf("expected entry bound to seeded game, got %+v", entries)
	}
}

func TestSyncInvalidPlatform(t *testing.T) {
	f := newFixtures(t)
	svc := newSyncService(f, &stubSteam{}, &stubPSN{}, &stubXbox{})

	if _, err := svc.SyncUserLibrary(context.Background(), 1, "gameboy", nil); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestSyncReportsProgress(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
	}}
	svc := newSyncService(f, steam, &stubPSN{}, &stubXbox{})

	var calls int
	var lastTotal int
	_, err := svc.SyncUserLibrary(context.Background(), 1, "", func(total, synced, failed int) {
		calls++
		lastTotal = total
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if calls == 0 || lastTotal != 1 {
		t.Fatalf("expected progress callback, calls=%d total=%d", calls, lastTotal)
	}
}

// cancellingSteam cancels the sync's context as it hands back titles.
type cancellingSteam struct {
	cancel context.CancelFunc
	titles []platform.Title
}

func (s *cancellingSteam) GetOwnedGames(context.Context, string) ([]platform.Title, error) {
	s.cancel()
	return s.titles, nil
}

func TestSyncCancelledMidPlatform(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	steam := &cancellingSteam{cancel: cancel, titles: []platform.Title{
		{PlatformGameID: "620", Name: "Portal 2", PlaytimeHours: 2.0},
		{PlatformGameID: "440", Name: "Team Fortress 2", PlaytimeHours: 1.0},
	}}
	svc := NewService(f.accounts, f.library, f.games,
		passthroughRefresher{}, &stubCatalog{games: f.games}, steam, &stubPSN{}, &stubXbox{})

	summary, err := svc.SyncUserLibrary(ctx, 1, "steam", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary != nil {
		t.Fatalf("cancelled sync must not report a summary, got %+v", summary)
	}

	_, total, err := svc.UserLibrary(context.Background(), 1, "", 50, 0)
	if err != nil {
		t.Fatalf("read library: %v", err)
	}
	if total != 0 {
		t.Fatalf("no titles should import after cancellation, got %d", total)
	}
}

func TestSyncReportsPerTitleProgress(t *testing.T) {
	f := newFixtures(t)
	linkAccount(t, f, 1, models.PlatformSteam, "7656")

	steam := &stubSteam{titles: []platform.Title{
		{PlatformGameID: "1", Name: "Alpha", PlaytimeHours: 1},
		{PlatformGameID: "2", Name: "Beta", PlaytimeHours: 2},
		{PlatformGameID: "3", Name: "Gamma", PlaytimeHours: 3},
	}}
	svc := newSyncService(f, steam, &stubPSN{}, &stubXbox{})

	type call struct{ total, synced, failed int }
	var calls []call
	_, err := svc.SyncUserLibrary(context.Background(), 1, "steam", func(total, synced, failed int) {
		calls = append(calls, call{total, synced, failed})
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	// One report per title, then one for the platform.
	if len(calls) != 4 {
		t.Fatalf("expected 4 progress reports, got %d: %+v", len(calls), calls)
	}
	if calls[0] != (call{3, 1, 0}) {
		t.Fatalf("first title report wrong: %+v", calls[0])
	}
	if calls[2] != (call{3, 3, 0}) {
		t.Fatalf("last title report wrong: %+v", calls[2])
	}
	if calls[3] != calls[2] {
		t.Fatalf("platform report should repeat the final counts: %+v", calls[3])
	}
}

func TestGamePlaytimeSumsAcrossPlatforms(t *testing.T) {
	f := newFixtures(t)
	steamAcct := linkAccount(t, f, 1, models.PlatformSteam, "7656")
	psnAcct := linkAccount(t, f, 1, models.PlatformPlayStation, "psn-abc")

	game := &models.Game{Name: "Cross Play", Slug: "cross-play"}
	if err := f.games.Create(context.Background(), game); err != nil {
		t.Fatalf("seed game: %v", err)
	}
	ctx := context.Background()
	if _, err := f.library.Upsert(ctx, 1, game.ID, &steamAcct.ID, 10, 0, nil); err != nil {
		t.Fatalf("upsert steam entry: %v", err)
	}
	if _, err := f.library.Upsert(ctx, 1, game.ID, &psnAcct.ID, 5.5, 0, nil); err != nil {
		t.Fatalf("upsert psn entry: %v", err)
	}

	svc := newSyncService(f, &stubSteam{}, &stubPSN{}, &stubXbox{})
	total, err := svc.GamePlaytime(ctx, 1, game.ID)
	if err != nil {
		t.Fatalf("game playtime: %v", err)
	}
	if total != 15.5 {
		t.Fatalf("expected 15.5 hours, got %v", total)
	}
}

func TestUserLibraryPlatformFilter(t *testing.T) {
	f := newFixtures(t)
	steamAcct := linkAccount(t, f, 1, models.PlatformSteam, "7656")
	psnAcct := linkAccount(t, f, 1, models.PlatformPlayStation, "psn-abc")

	g1 := &models.Game{Name: "A", Slug: "a"}
	g2 := &models.Game{Name: "B", Slug: "b"}
	ctx := context.Background()
	if err := f.games.Create(ctx, g1); err != nil {
		t.Fatal(err)
	}
	if err := f.games.Create(ctx, g2); err != nil {
		t.Fatal(err)
	}
	if _, err := f.library.Upsert(ctx, 1, g1.ID, &steamAcct.ID, 1, 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.library.Upsert(ctx, 1, g2.ID, &psnAcct.ID, 2, 0, nil); err != nil {
		t.Fatal(err)
	}

	svc := newSyncService(f, &stubSteam{}, &stubPSN{}, &stubXbox{})
	entries, total, err := svc.UserLibrary(ctx, 1, "steam", 50, 0)
	if err != nil {
		t.Fatalf("filtered read: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].GameID != g1.ID {
		t.Fatalf("expected only the steam entry, got total=%d %+v", total, entries)
	}
}
