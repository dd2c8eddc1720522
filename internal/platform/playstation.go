package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// PlayStationClient talks OAuth2 to the Sony account service and reads
// trophy-title data from the PSN mobile API.
type PlayStationClient struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string

	httpClient *http.Client
}

func NewPlayStationClient(clientID, clientSecret string) *PlayStationClient {
	return &PlayStationClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://ca.account.sony.com/api/authz/v3/oauth/authorize",
		TokenURL:     "https://ca.account.sony.com/api/authz/v3/oauth/token",
		APIBaseURL:   "https://m.np.playstation.com/api",
		httpClient:   &http.Client{Timeout: listTimeout},
	}
}

func (c *PlayStationClient) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"psn:mobile.v1", "psn:clientapp"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}

// AuthorizationURL builds the Sony authorize URL carrying our CSRF state.
func (c *PlayStationClient) AuthorizationURL(redirectURI, state string) string {
	return c.oauthConfig(redirectURI).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for tokens.
func (c *PlayStationClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		log.Printf("[PSN] Code exchange failed: %v", err)
		return nil, err
	}
	log.Printf("[PSN] Token exchanged, expires %s", tok.Expiry.Format(time.RFC3339))
	return &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// RefreshToken obtains a fresh access token. Sony may rotate the refresh
// token; when it does not, the old one is carried forward.
func (c *PlayStationClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Printf("[PSN] Token refresh failed: %v", err)
		return nil, err
	}
	bundle := &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	log.Printf("[PSN] Token refreshed, expires %s", tok.Expiry.Format(time.RFC3339))
	return bundle, nil
}

// GetUserInfo fetches the PSN profile behind an access token. The
// account ID is the stable identifier; onlineId is the display name.
func (c *PlayStationClient) GetUserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	endpoint := c.APIBaseURL + "/userProfile/v1/internal/users/me/profile"

	var result struct {
		Profile struct {
			AccountID  string `json:"accountId"`
			OnlineID   string `json:"onlineId"`
			AvatarURLs []struct {
				AvatarURL string `json:"avatarUrl"`
			} `json:"avatarUrls"`
		} `json:"profile"`
	}
	if err := c.getJSON(ctx, endpoint, nil, accessToken, defaultTimeout, &result); err != nil {
		log.Printf("[PSN] Profile fetch failed: %v", err)
		return nil, err
	}

	p := &Profile{ID: result.Profile.AccountID, Username: result.Profile.OnlineID}
	if len(result.Profile.AvatarURLs) > 0 {
		p.AvatarURL = result.Profile.AvatarURLs[0].AvatarURL
	}
	log.Printf("[PSN] Profile retrieved for account %s", p.ID)
	return p, nil
}

// GetUserTitles lists trophy titles, which is the closest PSN comes to
// an owned-games list. Titles without an npCommunicationId are skipped.
func (c *PlayStationClient) GetUserTitles(ctx context.Context, accessToken, accountID string) ([]Title, error) {
	endpoint := fmt.Sprintf("%s/trophy/v1/users/%s/trophyTitles", c.APIBaseURL, accountID)
	params := url.Values{}
	params.Set("limit", "100")

	var result struct {
		TrophyTitles []struct {
			NPCommunicationID string `json:"npCommunicationId"`
			TrophyTitleName   string `json:"trophyTitleName"`
			EarnedTrophies    struct {
				Bronze   int `json:"bronze"`
				Silver   int `json:"silver"`
				Gold     int `json:"gold"`
				Platinum int `json:"platinum"`
			} `json:"earnedTrophies"`
			DefinedTrophies struct {
				Bronze   int `json:"bronze"`
				Silver   int `json:"silver"`
				Gold     int `json:"gold"`
				Platinum int `json:"platinum"`
			} `json:"definedTrophies"`
			LastUpdatedDateTime string `json:"lastUpdatedDateTime"`
		} `json:"trophyTitles"`
	}
	if err := c.getJSON(ctx, endpoint, params, accessToken, listTimeout, &result); err != nil {
		log.Printf("[PSN] Trophy titles fetch failed for account %s: %v", accountID, err)
		return nil, err
	}

	titles := make([]Title, 0, len(result.TrophyTitles))
	for _, raw := range result.TrophyTitles {
		if raw.NPCommunicationID == "" {
			continue
		}
		t := Title{
			PlatformGameID: raw.NPCommunicationID,
			Name:           raw.TrophyTitleName,
			EarnedTrophies: TrophyCounts{
				Bronze:   raw.EarnedTrophies.Bronze,
				Silver:   raw.EarnedTrophies.Silver,
				Gold:     raw.EarnedTrophies.Gold,
				Platinum: raw.EarnedTrophies.Platinum,
			},
			AchievementsTotal: raw.DefinedTrophies.Bronze + raw.DefinedTrophies.Silver +
				raw.DefinedTrophies.Gold + raw.DefinedTrophies.Platinum,
		}
		if raw.LastUpdatedDateTime != "" {
			if lp, err := time.Parse(time.RFC3339, raw.LastUpdatedDateTime); err == nil {
				t.LastPlayedAt = &lp
			}
		}
		titles = append(titles, t)
	}
	log.Printf("[PSN] Retrieved %d trophy titles for account %s", len(titles), accountID)
	return titles, nil
}

func (c *PlayStationClient) getJSON(ctx context.Context, endpoint string, params url.Values, accessToken string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if params != nil {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("psn token rejected (401)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("psn api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
