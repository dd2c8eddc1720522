package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/store"
	"gorm.io/gorm"
)

func newTestGames(t *testing.T) *store.Games {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Game{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.NewGames(db)
}

// stubProvider returns canned candidates or a fixed error.
type stubProvider struct {
	candidates []Candidate
	err        error
	calls      int
}

func (p *stubProvider) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	p.calls++
	return p.candidates, p.err
}

func (p *stubProvider) Popular(ctx context.Context, limit, offset int) ([]Candidate, error) {
	p.calls++
	return p.candidates, p.err
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Elden Ring", "elden-ring"},
		{"The Witcher 3: Wild Hunt", "the-witcher-3-wild-hunt"},
		{"NieR:Automata", "nierautomata"},
		{"  Spaced   Out  ", "spaced-out"},
		{"---", ""},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSearchAndImportCreatesGame(t *testing.T) {
	games := newTestGames(t)
	igdb := &stubProvider{candidates: []Candidate{{
		IGDBID:      1942,
		Name:        "Elden Ring",
		Slug:        "elden-ring",
		Rating:      95.1,
		RatingCount: 3000,
	}}}
	svc := NewService(games, igdb, &stubProvider{})

	game, err := svc.SearchAndImport(context.Background(), "Elden Ring")
	if err != nil {
		t.Fatalf("search and import: %v", err)
	}
	if game.Name != "Elden Ring" || game.IGDBID == nil || *game.IGDBID != 1942 {
		t.Fatalf("unexpected game: %+v", game)
	}

	stored, err := games.BySlug(context.Background(), "elden-ring")
	if err != nil || stored == nil {
		t.Fatalf("expected game persisted, got %v err %v", stored, err)
	}
}

func TestSearchAndImportDeduplicates(t *testing.T) {
	games := newTestGames(t)
	igdb := &stubProvider{candidates: []Candidate{{
		IGDBID: 7, Name: "Hades", Slug: "hades",
	}}}
	svc := NewService(games, igdb, &stubProvider{})

	first, err := svc.SearchAndImport(context.Background(), "Hades")
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := svc.SearchAndImport(context.Background(), "Hades")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected dedup to return the same row, got %d and %d", first.ID, second.ID)
	}
}

func TestSearchAndImportFallsBackToRAWG(t *testing.T) {
	games := newTestGames(t)
	igdb := &stubProvider{err: errors.New("igdb down")}
	rawg := &stubProvider{candidates: []Candidate{{
		RAWGID: 501, Name: "Celeste", Slug: "celeste", Rating: 90,
	}}}
	svc := NewService(games, igdb, rawg)

	game, err := svc.SearchAndImport(context.Background(), "Celeste")
	if err != nil {
		t.Fatalf("expected rawg fallback to succeed: %v", err)
	}
	if game.RAWGID == nil || *game.RAWGID != 501 {
		t.Fatalf("expected rawg id carried, got %+v", game)
	}
	if rawg.calls != 1 {
		t.Fatalf("expected rawg consulted once, got %d", rawg.calls)
	}
}

func TestSearchAndImportBothProvidersDown(t *testing.T) {
	svc := NewService(newTestGames(t), &stubProvider{err: errors.New("igdb down")}, &stubProvider{err: errors.New("rawg down")})

	_, err := svc.SearchAndImport(context.Background(), "Anything")
	if !errors.Is(err, errs.ErrExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestSearchAndImportNoMatch(t *testing.T) {
	svc := NewService(newTestGames(t), &stubProvider{}, &stubProvider{})

	_, err := svc.SearchAndImport(context.Background(), "Totally Unknown Game")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSyncPopularGamesCountsNewOnly(t *testing.T) {
	games := newTestGames(t)
	igdb := &stubProvider{candidates: []Candidate{
		{IGDBID: 1, Name: "A", Slug: "a"},
		{IGDBID: 2, Name: "B", Slug: "b"},
	}}
	svc := NewService(games, igdb, &stubProvider{})

	n, err := svc.SyncPopularGames(context.Background(), 10)
	if err != nil {
		t.Fatalf("sync popular: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imports, got %d", n)
	}

	// Second pass finds everything already present.
	n, err = svc.SyncPopularGames(context.Background(), 10)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 new imports, got %d", n)
	}
}

func TestTransformRAWGScalesRating(t *testing.T) {
	out := transformRAWG([]rawgGame{{ID: 1, Name: "Test", Slug: "test", Rating: 4.5}})
	if len(out) != 1 || out[0].Rating != 90 {
		t.Fatalf("expected 0-5 rating scaled to 0-100, got %+v", out)
	}
}

func TestTransformIGDBCoverUpgrade(t *testing.T) {
	games := []igdbGame{{ID: 1, Name: "Test"}}
	games[0].Cover.URL = "//images.igdb.com/t_thumb/abc.jpg"
	out := transformIGDB(games)
	if out[0].CoverURL != "//images.igdb.com/t_cover_big/abc.jpg" {
		t.Fatalf("expected cover size swap, got %q", out[0].CoverURL)
	}
}
