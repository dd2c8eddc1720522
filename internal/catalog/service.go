package catalog

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/store"
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces   = regexp.MustCompile(`\s+`)
	slugCollapse = regexp.MustCompile(`-+`)
)

// Slugify turns a game name into a URL-friendly slug.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Provider is the common query surface of the IGDB and RAWG clients.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	Popular(ctx context.Context, limit, offset int) ([]Candidate, error)
}

// Service imports external catalog data into the local games table.
// IGDB is the primary provider; RAWG is consulted only when IGDB errors
// or returns nothing.
type Service struct {
	games *store.Games
	igdb  Provider
	rawg  Provider
}

func NewService(games *store.Games, igdb, rawg Provider) *Service {
	return &Service{games: games, igdb: igdb, rawg: rawg}
}

// SearchAndImport looks a game up by name in the external providers and
// persists the best hit locally. Returns the stored game, or an
// external error when both providers fail, or a not-found error when
// neither knows the name.
func (s *Service) SearchAndImport(ctx context.Context, name string) (*models.Game, error) {
	candidates, err := s.igdb.Search(ctx, name, 5)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			log.Printf("[Catalog] IGDB search %q failed, trying RAWG: %v", name, err)
		}
		var rawgErr error
		candidates, rawgErr = s.rawg.Search(ctx, name, 5)
		if rawgErr != nil {
			if err != nil {
				return nil, errs.Externalf("catalog lookup for %q failed: igdb: %v; rawg: %v", name, err, rawgErr)
			}
			return nil, errs.Externalf("catalog lookup for %q failed: %v", name, rawgErr)
		}
	}
	if len(candidates) == 0 {
		return nil, errs.NotFoundf("no catalog match for %q", name)
	}
	game, _, err := s.importCandidate(ctx, candidates[0])
	return game, err
}

// SyncPopularGames seeds the local table with popular titles from the
// primary provider. Returns how many rows were newly imported.
func (s *Service) SyncPopularGames(ctx context.Context, limit int) (int, error) {
	candidates, err := s.igdb.Popular(ctx, limit, 0)
	if err != nil {
		log.Printf("[Catalog] IGDB popular fetch failed, trying RAWG: %v", err)
		var rawgErr error
		candidates, rawgErr = s.rawg.Popular(ctx, limit, 1)
		if rawgErr != nil {
			return 0, errs.Externalf("popular games fetch failed: igdb: %v; rawg: %v", err, rawgErr)
		}
	}

	imported := 0
	for _, cand := range candidates {
		_, created, err := s.importCandidate(ctx, cand)
		if err != nil {
			log.Printf("[Catalog] Import of %q failed: %v", cand.Name, err)
			continue
		}
		if created {
			imported++
		}
	}
	log.Printf("[Catalog] Popular sync imported %d of %d candidates", imported, len(candidates))
	return imported, nil
}

// importCandidate stores a candidate, deduplicating on IGDB ID first and
// slug second. An existing row wins; imports never overwrite. The bool
// reports whether a new row was created.
func (s *Service) importCandidate(ctx context.Context, cand Candidate) (*models.Game, bool, error) {
	if cand.IGDBID != 0 {
		existing, err := s.games.ByIGDBID(ctx, cand.IGDBID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	if existing, err := s.games.BySlug(ctx, cand.Slug); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	game := &models.Game{
		Name:         cand.Name,
		Slug:         cand.Slug,
		Summary:      cand.Summary,
		CoverURL:     cand.CoverURL,
		ReleaseDate:  cand.ReleaseDate,
		Rating:       cand.Rating,
		RatingCount:  cand.RatingCount,
		LastSyncedAt: time.Now(),
	}
	if cand.IGDBID != 0 {
		id := cand.IGDBID
		game.IGDBID = &id
	}
	if cand.RAWGID != 0 {
		id := cand.RAWGID
		game.RAWGID = &id
	}
	if err := s.games.Create(ctx, game); err != nil {
		return nil, false, err
	}
	log.Printf("[Catalog] Imported %q (slug=%s)", game.Name, game.Slug)
	return game, true, nil
}
