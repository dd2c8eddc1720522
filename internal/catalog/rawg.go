package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RAWGClient queries the RAWG video-games database, the fallback
// provider when IGDB is down. Authentication is an API key in the query
// string.
type RAWGClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewRAWGClient(apiKey string) *RAWGClient {
	return &RAWGClient{
		apiKey:     apiKey,
		baseURL:    "https://api.rawg.io/api",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewRAWGClientForTest wires a RAWG client at a custom base URL.
func NewRAWGClientForTest(baseURL string) *RAWGClient {
	return &RAWGClient{
		apiKey:     "test",
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type rawgGame struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Released        string  `json:"released"`
	BackgroundImage string  `json:"background_image"`
	Rating          float64 `json:"rating"`
	RatingsCount    int     `json:"ratings_count"`
}

// Search queries games by name, capped at RAWG's page-size maximum.
func (c *RAWGClient) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit > 40 {
		limit = 40
	}
	params := url.Values{}
	params.Set("search", query)
	params.Set("page_size", strconv.Itoa(limit))

	results, err := c.listGames(ctx, params)
	if err != nil {
		log.Printf("[RAWG] Search %q failed: %v", query, err)
		return nil, err
	}
	return transformRAWG(results), nil
}

// Popular lists games ordered by rating.
func (c *RAWGClient) Popular(ctx context.Context, limit, page int) ([]Candidate, error) {
	if limit > 40 {
		limit = 40
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("ordering", "-rating")
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(limit))

	results, err := c.listGames(ctx, params)
	if err != nil {
		log.Printf("[RAWG] Popular fetch failed: %v", err)
		return nil, err
	}
	return transformRAWG(results), nil
}

func (c *RAWGClient) listGames(ctx context.Context, params url.Values) ([]rawgGame, error) {
	params.Set("key", c.apiKey)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/games?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rawg returned %d", resp.StatusCode)
	}

	var result struct {
		Results []rawgGame `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

func transformRAWG(games []rawgGame) []Candidate {
	out := make([]Candidate, 0, len(games))
	for _, g := range games {
		name := g.Name
		if name == "" {
			name = "Unknown Game"
		}
		slug := g.Slug
		if slug == "" {
			slug = Slugify(name)
		}
		c := Candidate{
			RAWGID:   g.ID,
			Name:     name,
			Slug:     slug,
			CoverURL: g.BackgroundImage,
			// RAWG rates 0..5; normalize to the IGDB 0..100 scale.
			Rating:      g.Rating * 20,
			RatingCount: g.RatingsCount,
		}
		if g.Released != "" {
			if rd, err := time.Parse("2006-01-02", g.Released); err == nil {
				c.ReleaseDate = &rd
			}
		}
		out = append(out, c)
	}
	return out
}
