package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const openIDNS = "http://specs.openid.net/auth/2.0"
const openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

// SteamClient authenticates via OpenID 2.0 (Steam predates OAuth2) and
// reads library data from the Steam Web API with the server's API key.
// There are no per-user tokens.
type SteamClient struct {
	APIKey     string
	OpenIDURL  string
	APIBaseURL string

	httpClient *http.Client
}

func NewSteamClient(apiKey string) *SteamClient {
	return &SteamClient{
		APIKey:     apiKey,
		OpenIDURL:  "https://steamcommunity.com/openid/login",
		APIBaseURL: "https://api.steampowered.com",
		httpClient: &http.Client{Timeout: listTimeout},
	}
}

// AuthorizationURL builds the checkid_setup URL for Steam's OpenID 2.0
// login page.
// Steam has no app registration; the realm is the redirect URI minus its
// last path segment.
func (c *SteamClient) AuthorizationURL(redirectURI string) string {
	realm := redirectURI
	if idx := strings.LastIndex(redirectURI, "/"); idx > len("https://") {
		realm = redirectURI[:idx]
	}

	params := url.Values{}
	params.Set("openid.ns", openIDNS)
	params.Set("openid.mode", "checkid_setup")
	params.Set("openid.return_to", redirectURI)
	params.Set("openid.realm", realm)
	params.Set("openid.identity", openIDIdentifierSelect)
	params.Set("openid.claimed_id", openIDIdentifierSelect)

	return c.OpenIDURL + "?" + params.Encode()
}

// VerifyAuthentication validates a Steam callback by re-posting the
// caller's query parameters with openid.mode rewritten to
// check_authentication. Steam answers a key-value body; the response is
// valid only if it contains "is_valid:true". Returns the 64-bit Steam ID
// (the trailing path segment of openid.claimed_id) or "".
func (c *SteamClient) VerifyAuthentication(ctx context.Context, params url.Values) (string, error) {
	verify := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			verify.Add(k, v)
		}
	}
	verify.Set("openid.mode", "check_authentication")

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.OpenIDURL, strings.NewReader(verify.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Steam] OpenID verification request failed: %v", err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "is_valid:true") {
		log.Printf("[Steam] OpenID verification rejected (status %d)", resp.StatusCode)
		return "", nil
	}

	claimedID := params.Get("openid.claimed_id")
	if claimedID == "" {
		return "", nil
	}
	parts := strings.Split(claimedID, "/")
	steamID := parts[len(parts)-1]
	log.Printf("[Steam] Verified steam_id=%s", steamID)
	return steamID, nil
}

// GetUserInfo fetches the player summary for a Steam ID.
func (c *SteamClient) GetUserInfo(ctx context.Context, steamID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v0002/", c.APIBaseURL)
	params := url.Values{}
	params.Set("key", c.APIKey)
	params.Set("steamids", steamID)

	var result struct {
		Response struct {
			Players []struct {
				SteamID     string `json:"steamid"`
				PersonaName string `json:"personaname"`
				AvatarFull  string `json:"avatarfull"`
			} `json:"players"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, endpoint, params, defaultTimeout, &result); err != nil {
		log.Printf("[Steam] GetPlayerSummaries failed for %s: %v", steamID, err)
		return nil, err
	}
	if len(result.Response.Players) == 0 {
		log.Printf("[Steam] No player found for steam_id=%s", steamID)
		return nil, nil
	}

	p := result.Response.Players[0]
	return &Profile{ID: p.SteamID, Username: p.PersonaName, AvatarURL: p.AvatarFull}, nil
}

// GetOwnedGames fetches the user's library with playtime. Playtime comes
// back in minutes and is normalized to hours with 2-decimal precision.
func (c *SteamClient) GetOwnedGames(ctx context.Context, steamID string) ([]Title, error) {
	endpoint := fmt.Sprintf("%s/IPlayerService/GetOwnedGames/v0001/", c.APIBaseURL)
	params := url.Values{}
	params.Set("key", c.APIKey)
	params.Set("steamid", steamID)
	params.Set("include_appinfo", "1")
	params.Set("include_played_free_games", "1")

	var result struct {
		Response struct {
			Games []struct {
				AppID           int64  `json:"appid"`
				Name            string `json:"name"`
				PlaytimeForever int64  `json:"playtime_forever"`
				RTimeLastPlayed int64  `json:"rtime_last_played"`
			} `json:"games"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, endpoint, params, listTimeout, &result); err != nil {
		log.Printf("[Steam] GetOwnedGames failed for %s: %v", steamID, err)
		return nil, err
	}

	titles := make([]Title, 0, len(result.Response.Games))
	for _, g := range result.Response.Games {
		name := g.Name
		if name == "" {
			name = fmt.Sprintf("App %d", g.AppID)
		}
		t := Title{
			PlatformGameID: fmt.Sprintf("%d", g.AppID),
			Name:           name,
			PlaytimeHours:  roundHours(g.PlaytimeForever),
		}
		if g.RTimeLastPlayed > 0 {
			lp := time.Unix(g.RTimeLastPlayed, 0)
			t.LastPlayedAt = &lp
		}
		titles = append(titles, t)
	}
	log.Printf("[Steam] Retrieved %d owned games for steam_id=%s", len(titles), steamID)
	return titles, nil
}

// Achievements is the per-game achievement summary from
// GetPlayerAchievements.
type Achievements struct {
	Total    int
	Achieved int
}

// GetAchievements fetches per-game achievement stats. Steam answers 400
// for games without achievements; that is not an error.
func (c *SteamClient) GetAchievements(ctx context.Context, steamID, appID string) (*Achievements, error) {
	endpoint := fmt.Sprintf("%s/ISteamUserStats/GetPlayerAchievements/v0001/", c.APIBaseURL)
	params := url.Values{}
	params.Set("key", c.APIKey)
	params.Set("steamid", steamID)
	params.Set("appid", appID)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Steam] GetPlayerAchievements failed for app %s: %v", appID, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// Game has no achievements.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam achievements returned %d", resp.StatusCode)
	}

	var result struct {
		PlayerStats struct {
			Achievements []struct {
				Achieved int `json:"achieved"`
			} `json:"achievements"`
		} `json:"playerstats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	a := &Achievements{Total: len(result.PlayerStats.Achievements)}
	for _, ach := range result.PlayerStats.Achievements {
		if ach.Achieved == 1 {
			a.Achieved++
		}
	}
	return a, nil
}

func (c *SteamClient) getJSON(ctx context.Context, endpoint string, params url.Values, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("steam api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// roundHours converts minutes to hours rounded to 2 decimals.
func roundHours(minutes int64) float64 {
	return math.Round(float64(minutes)/60*100) / 100
}
