// Package oauth orchestrates the account-linking flows: initiation,
// callback handling, token refresh and unlinking. The per-platform
// protocol work lives in internal/platform; this package owns the
// linking rules (one link per user per platform, one owner per external
// identity) and the persisted account state.
package oauth

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/questlog/questlog/internal/auth/state"
	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/logging"
	"github.com/questlog/questlog/internal/platform"
	"github.com/questlog/questlog/internal/store"
)

// SteamAuthenticator is the Steam OpenID surface the service needs.
type SteamAuthenticator interface {
	AuthorizationURL(redirectURI string) string
	VerifyAuthentication(ctx context.Context, params url.Values) (string, error)
	GetUserInfo(ctx context.Context, steamID string) (*platform.Profile, error)
}

// PlayStationAuthenticator is the PSN OAuth2 surface the service needs.
type PlayStationAuthenticator interface {
	AuthorizationURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*platform.TokenBundle, error)
	RefreshToken(ctx context.Context, refreshToken string) (*platform.TokenBundle, error)
	GetUserInfo(ctx context.Context, accessToken string) (*platform.Profile, error)
}

// XboxAuthenticator is the Xbox chain surface the service needs. The
// identity comes back inside the token bundle, so no profile call here.
type XboxAuthenticator interface {
	AuthorizationURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*platform.TokenBundle, error)
	RefreshToken(ctx context.Context, refreshToken string) (*platform.TokenBundle, error)
}

// Service runs the linking flows against the persisted account state.
type Service struct {
	accounts *store.LinkedAccounts
	library  *store.Library
	states   *state.Store
	steam    SteamAuthenticator
	psn      PlayStationAuthenticator
	xbox     XboxAuthenticator

	// baseURL is the public origin used to build callback URLs,
	// e.g. "http://localhost:8080".
	baseURL string
}

func NewService(accounts *store.LinkedAccounts, library *store.Library, states *state.Store, steam SteamAuthenticator, psn PlayStationAuthenticator, xbox XboxAuthenticator, baseURL string) *Service {
	return &Service{
		accounts: accounts,
		library:  library,
		states:   states,
		steam:    steam,
		psn:      psn,
		xbox:     xbox,
		baseURL:  baseURL,
	}
}

// redirectURI builds the callback URL for a flow. The state token rides
// in the query string so the callback can identify the flow even on
// Steam, whose OpenID response has no state parameter of its own.
func (s *Service) redirectURI(platformName, stateToken string) string {
	return fmt.Sprintf("%s/api/v1/oauth/%s/callback?state=%s", s.baseURL, platformName, stateToken)
}

// Initiate starts a linking flow. It rejects unknown platforms and
// platforms the user already linked, then issues a state token and
// returns the provider URL to send the user to.
func (s *Service) Initiate(ctx context.Context, userID int64, platformName string) (authURL, stateToken string, err error) {
	if !models.ValidPlatform(platformName) {
		return "", "", errs.Validationf("invalid platform %q", platformName)
	}

	existing, err := s.accounts.ByUserAndPlatform(ctx, userID, platformName)
	if err != nil {
		return "", "", err
	}
	if existing != nil {
		return "", "", errs.Conflictf("user already has a %s account linked", platformName)
	}

	stateToken, err = s.states.Create(userID, platformName)
	if err != nil {
		return "", "", err
	}
	redirect := s.redirectURI(platformName, stateToken)

	switch platformName {
	case models.PlatformSteam:
		authURL = s.steam.AuthorizationURL(redirect)
	case models.PlatformPlayStation:
		authURL = s.psn.AuthorizationURL(redirect, stateToken)
	case models.PlatformXbox:
		authURL = s.xbox.AuthorizationURL(redirect, stateToken)
	}

	log.Printf("[OAuth] Initiated %s linking for user %d", platformName, userID)
	return authURL, stateToken, nil
}

// ResolveState consumes a callback's state token and returns the flow it
// belongs to. Unknown, reused or expired tokens fail authentication.
func (s *Service) ResolveState(token string) (userID int64, platformName string, err error) {
	userID, platformName, ok := s.states.Consume(token)
	if !ok {
		return 0, "", errs.Authenticationf("invalid or expired state token")
	}
	return userID, platformName, nil
}

// HandleSteamCallback verifies the OpenID response and links the Steam
// identity. Steam rows carry no tokens; syncs use the server's API key.
func (s *Service) HandleSteamCallback(ctx context.Context, userID int64, params url.Values) (*models.LinkedAccount, error) {
	steamID, err := s.steam.VerifyAuthentication(ctx, params)
	if err != nil {
		return nil, errs.Externalf("steam verification failed: %v", err)
	}
	if steamID == "" {
		return nil, errs.Authenticationf("steam authentication failed")
	}

	profile, err := s.steam.GetUserInfo(ctx, steamID)
	if err != nil || profile == nil {
		return nil, errs.Authenticationf("failed to retrieve steam profile for %s", steamID)
	}

	return s.link(ctx, userID, models.PlatformSteam, steamID, profile.Username, nil)
}

// HandleOAuthCallback finishes the code exchange for PSN or Xbox and
// links the resulting identity.
func (s *Service) HandleOAuthCallback(ctx context.Context, userID int64, platformName, code, stateToken string) (*models.LinkedAccount, error) {
	if platformName != models.PlatformPlayStation && platformName != models.PlatformXbox {
		return nil, errs.Validationf("platform %q does not use an OAuth callback", platformName)
	}
	if code == "" {
		return nil, errs.Validationf("missing authorization code")
	}

	redirect := s.redirectURI(platformName, stateToken)

	var (
		bundle   *platform.TokenBundle
		identity string
		username string
	)
	switch platformName {
	case models.PlatformPlayStation:
		var err error
		bundle, err = s.psn.ExchangeCode(ctx, code, redirect)
		if err != nil {
			return nil, errs.Authenticationf("playstation token exchange failed: %v", err)
		}
		profile, err := s.psn.GetUserInfo(ctx, bundle.AccessToken)
		if err != nil || profile == nil || profile.ID == "" {
			return nil, errs.Authenticationf("failed to retrieve playstation profile")
		}
		identity = profile.ID
		username = profile.Username

	case models.PlatformXbox:
		var err error
		bundle, err = s.xbox.ExchangeCode(ctx, code, redirect)
		if err != nil {
			return nil, errs.Authenticationf("xbox token exchange failed: %v", err)
		}
		if bundle.XUID == "" {
			return nil, errs.Authenticationf("xbox response carried no user identity")
		}
		identity = bundle.XUID
		username = bundle.Gamertag
	}

	return s.link(ctx, userID, platformName, identity, username, bundle)
}

// link creates or reconnects a linked account, enforcing the one-owner
// rule for external identities. A nil bundle means a tokenless platform.
func (s *Service) link(ctx context.Context, userID int64, platformName, platformUserID, username string, bundle *platform.TokenBundle) (*models.LinkedAccount, error) {
	existing, err := s.accounts.ByPlatformUser(ctx, platformName, platformUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.UserID != userID {
		log.Printf("[OAuth] %s identity %s already owned by user %d, rejected link for user %d",
			platformName, platformUserID, existing.UserID, userID)
		return nil, errs.Conflictf("this %s account is already linked to another user", platformName)
	}

	if existing != nil {
		// Reconnect: same user relinking refreshes the stored identity
		// and tokens in place.
		existing.PlatformUsername = username
		existing.ConnectedAt = time.Now()
		applyBundle(existing, platformName, bundle)
		if err := s.accounts.Save(ctx, existing); err != nil {
			return nil, err
		}
		log.Printf("[OAuth] Reconnected %s account %s for user %d", platformName, platformUserID, userID)
		return existing, nil
	}

	acct := &models.LinkedAccount{
		UserID:           userID,
		Platform:         platformName,
		PlatformUserID:   platformUserID,
		PlatformUsername: username,
		ConnectedAt:      time.Now(),
	}
	applyBundle(acct, platformName, bundle)
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	log.Printf("[OAuth] Linked %s account %s (%s) for user %d", platformName, platformUserID, username, userID)
	return acct, nil
}

// applyBundle copies a token bundle onto an account. Xbox stores the
// XSTS token in the access-token column because that is what the data
// APIs consume; the Microsoft refresh token still drives renewal.
func applyBundle(acct *models.LinkedAccount, platformName string, bundle *platform.TokenBundle) {
	if bundle == nil {
		return
	}
	if platformName == models.PlatformXbox && bundle.XSTSToken != "" {
		acct.AccessToken = bundle.XSTSToken
	} else {
		acct.AccessToken = bundle.AccessToken
	}
	if bundle.RefreshToken != "" {
		acct.RefreshToken = bundle.RefreshToken
	}
	if !bundle.ExpiresAt.IsZero() {
		exp := bundle.ExpiresAt
		acct.TokenExpiresAt = &exp
	}
}

// RefreshTokenIfNeeded renews an account's tokens when they are expired
// or about to expire. Tokenless platforms and fresh tokens pass through
// untouched.
func (s *Service) RefreshTokenIfNeeded(ctx context.Context, acct *models.LinkedAccount) (*models.LinkedAccount, error) {
	if acct.Platform == models.PlatformSteam {
		return acct, nil
	}
	if !acct.IsTokenExpired() {
		return acct, nil
	}
	if acct.RefreshToken == "" {
		return nil, errs.Authenticationf("%s token expired and no refresh token stored", acct.Platform)
	}

	log.Printf("[OAuth] Refreshing %s token for account %d", acct.Platform, acct.ID)

	var (
		bundle *platform.TokenBundle
		err    error
	)
	switch acct.Platform {
	case models.PlatformPlayStation:
		bundle, err = s.psn.RefreshToken(ctx, acct.RefreshToken)
	case models.PlatformXbox:
		bundle, err = s.xbox.RefreshToken(ctx, acct.RefreshToken)
	default:
		return nil, errs.Validationf("unknown platform %q", acct.Platform)
	}
	if err != nil {
		return nil, errs.Authenticationf("failed to refresh %s token: %v", acct.Platform, err)
	}

	applyBundle(acct, acct.Platform, bundle)
	if err := s.accounts.UpdateTokens(ctx, acct.ID, acct.AccessToken, acct.RefreshToken, acct.TokenExpiresAt); err != nil {
		return nil, err
	}
	log.Printf("[OAuth] Refreshed %s token for account %d (token %s)",
		acct.Platform, acct.ID, logging.MaskToken(acct.AccessToken))
	return acct, nil
}

// Unlink removes a platform link and every library entry imported
// through it. Entries imported from other platforms are untouched.
func (s *Service) Unlink(ctx context.Context, userID int64, platformName string) error {
	if !models.ValidPlatform(platformName) {
		return errs.Validationf("invalid platform %q", platformName)
	}

	acct, err := s.accounts.ByUserAndPlatform(ctx, userID, platformName)
	if err != nil {
		return err
	}
	if acct == nil {
		return errs.NotFoundf("no %s account linked for this user", platformName)
	}

	removed, err := s.library.DeleteByLinkedAccount(ctx, acct.ID)
	if err != nil {
		return err
	}

	if _, err := s.accounts.Delete(ctx, userID, platformName); err != nil {
		return err
	}
	log.Printf("[OAuth] Unlinked %s for user %d, removed %d library entries", platformName, userID, removed)
	return nil
}

// UserLinkedAccounts lists a user's links, newest first.
func (s *Service) UserLinkedAccounts(ctx context.Context, userID int64) ([]models.LinkedAccount, error) {
	return s.accounts.ForUser(ctx, userID)
}
