package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// XboxClient runs the three-step Xbox Live authentication chain:
// Microsoft OAuth2 on login.live.com, then the user token from
// user.auth.xboxlive.com, then the XSTS token that the data APIs accept.
// Library data comes from an xbl.io-compatible API.
type XboxClient struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserAuthURL  string
	XSTSAuthURL  string
	APIBaseURL   string

	httpClient *http.Client
}

func NewXboxClient(clientID, clientSecret string) *XboxClient {
	return &XboxClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://login.live.com/oauth20_authorize.srf",
		TokenURL:     "https://login.live.com/oauth20_token.srf",
		UserAuthURL:  "https://user.auth.xboxlive.com/user/authenticate",
		XSTSAuthURL:  "https://xsts.auth.xboxlive.com/xsts/authorize",
		APIBaseURL:   "https://xbl.io/api/v2",
		httpClient:   &http.Client{Timeout: listTimeout},
	}
}

func (c *XboxClient) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"Xboxlive.signin", "Xboxlive.offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}

// AuthorizationURL builds the Microsoft authorize URL carrying our CSRF
// state.
func (c *XboxClient) AuthorizationURL(redirectURI, state string) string {
	return c.oauthConfig(redirectURI).AuthCodeURL(state)
}

// ExchangeCode trades the Microsoft authorization code for tokens and
// then climbs the Xbox Live and XSTS steps. The XSTS token is what the
// titles API wants, so the bundle carries the whole chain plus the XUID
// and gamertag from the XSTS display claims.
func (c *XboxClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error) {
	octx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauthConfig(redirectURI).Exchange(octx, code)
	if err != nil {
		log.Printf("[Xbox] Microsoft code exchange failed: %v", err)
		return nil, err
	}
	return c.finishChain(ctx, tok)
}

// RefreshToken renews the Microsoft token and re-derives the Xbox Live
// and XSTS tokens, which expire on their own schedule.
func (c *XboxClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	octx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.oauthConfig("").TokenSource(octx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Printf("[Xbox] Microsoft token refresh failed: %v", err)
		return nil, err
	}
	bundle, err := c.finishChain(ctx, tok)
	if err != nil {
		return nil, err
	}
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	return bundle, nil
}

func (c *XboxClient) finishChain(ctx context.Context, tok *oauth2.Token) (*TokenBundle, error) {
	xboxToken, err := c.userToken(ctx, tok.AccessToken)
	if err != nil {
		log.Printf("[Xbox] User token step failed: %v", err)
		return nil, err
	}
	xstsToken, xuid, gamertag, err := c.xstsToken(ctx, xboxToken)
	if err != nil {
		log.Printf("[Xbox] XSTS step failed: %v", err)
		return nil, err
	}

	log.Printf("[Xbox] Authenticated xuid=%s gamertag=%s", xuid, gamertag)
	return &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		XboxToken:    xboxToken,
		XSTSToken:    xstsToken,
		XUID:         xuid,
		Gamertag:     gamertag,
	}, nil
}

// userToken exchanges the Microsoft access token for an Xbox Live user
// token. The RpsTicket wants the "d=" prefix for tokens issued to
// non-legacy app registrations.
func (c *XboxClient) userToken(ctx context.Context, accessToken string) (string, error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + accessToken,
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}

	var result struct {
		Token string `json:"Token"`
	}
	if err := c.postJSON(ctx, c.UserAuthURL, payload, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("xbox user auth returned no token")
	}
	return result.Token, nil
}

// xstsToken exchanges the user token for an XSTS token scoped to retail
// Xbox Live. The display claims carry the XUID and gamertag.
func (c *XboxClient) xstsToken(ctx context.Context, xboxToken string) (token, xuid, gamertag string, err error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xboxToken},
		},
		"RelyingParty": "http://xboxlive.com",
		"TokenType":    "JWT",
	}

	var result struct {
		Token         string `json:"Token"`
		DisplayClaims struct {
			XUI []struct {
				XID string `json:"xid"`
				GTG string `json:"gtg"`
			} `json:"xui"`
		} `json:"DisplayClaims"`
	}
	if err := c.postJSON(ctx, c.XSTSAuthURL, payload, &result); err != nil {
		return "", "", "", err
	}
	if result.Token == "" || len(result.DisplayClaims.XUI) == 0 {
		return "", "", "", fmt.Errorf("xsts response missing token or claims")
	}
	claim := result.DisplayClaims.XUI[0]
	return result.Token, claim.XID, claim.GTG, nil
}

// GetUserInfo fetches the Xbox Live profile for a XUID.
func (c *XboxClient) GetUserInfo(ctx context.Context, xuid, xstsToken string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/account/%s", c.APIBaseURL, xuid)

	var result struct {
		Gamertag      string `json:"gamertag"`
		DisplayPicRaw string `json:"displayPicRaw"`
	}
	if err := c.getJSON(ctx, endpoint, xuid, xstsToken, defaultTimeout, &result); err != nil {
		log.Printf("[Xbox] Profile fetch failed for xuid=%s: %v", xuid, err)
		return nil, err
	}
	return &Profile{ID: xuid, Username: result.Gamertag, AvatarURL: result.DisplayPicRaw}, nil
}

// GetUserTitles lists the user's played titles with achievement
// progress. Titles without a titleId are skipped.
func (c *XboxClient) GetUserTitles(ctx context.Context, xuid, xstsToken string) ([]Title, error) {
	endpoint := fmt.Sprintf("%s/account/%s/titles", c.APIBaseURL, xuid)

	var result struct {
		Titles []struct {
			TitleID     string `json:"titleId"`
			Name        string `json:"name"`
			Achievement struct {
				CurrentAchievements int `json:"currentAchievements"`
				TotalAchievements   int `json:"totalAchievements"`
			} `json:"achievement"`
			TitleHistory struct {
				LastTimePlayed string `json:"lastTimePlayed"`
			} `json:"titleHistory"`
		} `json:"titles"`
	}
	if err := c.getJSON(ctx, endpoint, xuid, xstsToken, listTimeout, &result); err != nil {
		log.Printf("[Xbox] Titles fetch failed for xuid=%s: %v", xuid, err)
		return nil, err
	}

	titles := make([]Title, 0, len(result.Titles))
	for _, raw := range result.Titles {
		if raw.TitleID == "" {
			continue
		}
		t := Title{
			PlatformGameID:     raw.TitleID,
			Name:               raw.Name,
			AchievementsEarned: raw.Achievement.CurrentAchievements,
			AchievementsTotal:  raw.Achievement.TotalAchievements,
		}
		if raw.TitleHistory.LastTimePlayed != "" {
			if lp, err := time.Parse(time.RFC3339, raw.TitleHistory.LastTimePlayed); err == nil {
				t.LastPlayedAt = &lp
			}
		}
		titles = append(titles, t)
	}
	log.Printf("[Xbox] Retrieved %d titles for xuid=%s", len(titles), xuid)
	return titles, nil
}

func (c *XboxClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("xbox auth endpoint returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON performs an XBL3.0-authorized GET. The header format is
// "XBL3.0 x={xuid};{xsts token}".
func (c *XboxClient) getJSON(ctx context.Context, endpoint, xuid, xstsToken string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("XBL3.0 x=%s;%s", xuid, xstsToken))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("xbox token rejected (401)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("xbox api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
