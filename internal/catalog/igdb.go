// Package catalog keeps the local game table populated from the IGDB
// API, falling back to RAWG when IGDB is unavailable. Results are
// normalized into one candidate shape before import.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// igdbRateLimit is IGDB's documented 4 requests per second.
const igdbRateLimit = 4

// Candidate is one external catalog hit, normalized across providers.
// Rating is on the 0..100 scale.
type Candidate struct {
	IGDBID      int64
	RAWGID      int64
	Name        string
	Slug        string
	Summary     string
	CoverURL    string
	ReleaseDate *time.Time
	Rating      float64
	RatingCount int
}

// IGDBClient queries the IGDB v4 API. Authentication is Twitch client
// credentials; the token source caches and renews the app token.
type IGDBClient struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewIGDBClient(clientID, clientSecret string) *IGDBClient {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://id.twitch.tv/oauth2/token",
	}
	return &IGDBClient{
		clientID:   clientID,
		baseURL:    "https://api.igdb.com/v4",
		httpClient: conf.Client(context.Background()),
		limiter:    rate.NewLimiter(rate.Limit(igdbRateLimit), igdbRateLimit),
	}
}

// NewIGDBClientForTest wires an IGDB client at a custom base URL with a
// plain HTTP client, bypassing the Twitch token exchange.
func NewIGDBClientForTest(baseURL string) *IGDBClient {
	return &IGDBClient{
		clientID:   "test",
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

type igdbGame struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Cover   struct {
		URL string `json:"url"`
	} `json:"cover"`
	FirstReleaseDate int64   `json:"first_release_date"`
	Rating           float64 `json:"rating"`
	RatingCount      int     `json:"rating_count"`
}

// Search queries games by name using an Apicalypse body.
func (c *IGDBClient) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	body := fmt.Sprintf(`search %q; fields id, name, summary, cover.url, first_release_date, rating, rating_count; limit %d;`,
		query, limit)
	games, err := c.query(ctx, body)
	if err != nil {
		log.Printf("[IGDB] Search %q failed: %v", query, err)
		return nil, err
	}
	return transformIGDB(games), nil
}

// Popular lists well-rated games ordered by rating count, the seed set
// for the local catalog.
func (c *IGDBClient) Popular(ctx context.Context, limit, offset int) ([]Candidate, error) {
	body := fmt.Sprintf(`fields id, name, summary, cover.url, first_release_date, rating, rating_count; where rating_count > 100 & rating > 70; sort rating_count desc; limit %d; offset %d;`,
		limit, offset)
	games, err := c.query(ctx, body)
	if err != nil {
		log.Printf("[IGDB] Popular fetch failed: %v", err)
		return nil, err
	}
	return transformIGDB(games), nil
}

func (c *IGDBClient) query(ctx context.Context, body string) ([]igdbGame, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("igdb returned %d: %s", resp.StatusCode, msg)
	}

	var games []igdbGame
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return nil, err
	}
	return games, nil
}

func transformIGDB(games []igdbGame) []Candidate {
	out := make([]Candidate, 0, len(games))
	for _, g := range games {
		name := g.Name
		if name == "" {
			name = "Unknown Game"
		}
		c := Candidate{
			IGDBID:      g.ID,
			Name:        name,
			Slug:        Slugify(name),
			Summary:     g.Summary,
			Rating:      g.Rating,
			RatingCount: g.RatingCount,
		}
		if g.Cover.URL != "" {
			// IGDB hands out thumbnail URLs; swap in the big cover size.
			c.CoverURL = strings.Replace(g.Cover.URL, "t_thumb", "t_cover_big", 1)
		}
		if g.FirstReleaseDate > 0 {
			rd := time.Unix(g.FirstReleaseDate, 0)
			c.ReleaseDate = &rd
		}
		out = append(out, c)
	}
	return out
}
