package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/questlog/questlog/internal/auth/oauth"
	"github.com/questlog/questlog/internal/db/models"
	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/jobs"
	"github.com/questlog/questlog/internal/library"
)

// linkedAccountView is the wire shape of a linked account. Tokens never
// leave the service.
type linkedAccountView struct {
	ID               int64      `json:"id"`
	Platform         string     `json:"platform"`
	PlatformUserID   string     `json:"platform_user_id"`
	PlatformUsername string     `json:"platform_username"`
	ConnectedAt      time.Time  `json:"connected_at"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
}

func viewAccount(a models.LinkedAccount) linkedAccountView {
	return linkedAccountView{
		ID:               a.ID,
		Platform:         a.Platform,
		PlatformUserID:   a.PlatformUserID,
		PlatformUsername: a.PlatformUsername,
		ConnectedAt:      a.ConnectedAt,
		LastSyncedAt:     a.LastSyncedAt,
	}
}

type libraryEntryView struct {
	ID                int64      `json:"id"`
	GameID            int64      `json:"game_id"`
	LinkedAccountID   *int64     `json:"linked_account_id,omitempty"`
	PlaytimeHours     float64    `json:"playtime_hours"`
	AchievementsCount int        `json:"achievements_count"`
	LastPlayedAt      *time.Time `json:"last_played_at,omitempty"`
	ImportedAt        time.Time  `json:"imported_at"`
}

func viewEntry(e models.GameLibrary) libraryEntryView {
	return libraryEntryView{
		ID:                e.ID,
		GameID:            e.GameID,
		LinkedAccountID:   e.LinkedAccountID,
		PlaytimeHours:     e.PlaytimeHours,
		AchievementsCount: e.AchievementsCount,
		LastPlayedAt:      e.LastPlayedAt,
		ImportedAt:        e.ImportedAt,
	}
}

// InitiateOAuthHandler starts a linking flow and returns the provider
// URL to redirect the user to.
func InitiateOAuthHandler(svc *oauth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformName := chi.URLParam(r, "platform")
		authURL, stateToken, err := svc.Initiate(r.Context(), userFrom(r), platformName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"authorization_url": authURL,
			"state":             stateToken,
		})
	}
}

// OAuthCallbackHandler finishes a linking flow. It is unauthenticated;
// the state token alone identifies the flow. Success redirects the
// browser back to the frontend.
func OAuthCallbackHandler(svc *oauth.Service, frontendURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformName := chi.URLParam(r, "platform")
		stateToken := r.URL.Query().Get("state")

		userID, statePlatform, err := svc.ResolveState(stateToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if statePlatform != platformName {
			writeError(w, r, errs.Authenticationf("state token was issued for %s", statePlatform))
			return
		}

		var acct *models.LinkedAccount
		if platformName == models.PlatformSteam {
			acct, err = svc.HandleSteamCallback(r.Context(), userID, r.URL.Query())
		} else {
			code := r.URL.Query().Get("code")
			acct, err = svc.HandleOAuthCallback(r.Context(), userID, platformName, code, stateToken)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		dest := fmt.Sprintf("%s/linked-accounts?success=true&platform=%s", frontendURL, acct.Platform)
		http.Redirect(w, r, dest, http.StatusFound)
	}
}

// LinkedAccountsHandler lists the caller's linked accounts.
func LinkedAccountsHandler(svc *oauth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := svc.UserLinkedAccounts(r.Context(), userFrom(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]linkedAccountView, 0, len(accounts))
		for _, a := range accounts {
			views = append(views, viewAccount(a))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// UnlinkHandler removes a platform link and its imported entries.
func UnlinkHandler(svc *oauth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platformName := chi.URLParam(r, "platform")
		if err := svc.Unlink(r.Context(), userFrom(r), platformName); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": platformName + " account unlinked successfully",
		})
	}
}

// StartSyncHandler launches a background sync job and returns its ID
// without waiting for the sync.
func StartSyncHandler(libSvc *library.Service, manager *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userFrom(r)
		platformName := r.URL.Query().Get("platform")
		if platformName != "" && !models.ValidPlatform(platformName) {
			writeError(w, r, errs.Validationf("invalid platform %q", platformName))
			return
		}

		jobID := manager.CreateJob(userID, platformName)
		err := manager.StartJob(jobID, func(ctx context.Context, progress func(total, synced, failed int)) (any, error) {
			return libSvc.SyncUserLibrary(ctx, userID, platformName, progress)
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id":  jobID,
			"status":  "started",
			"message": "library sync started in background",
		})
	}
}

// SyncStatusHandler reports one job's progress. Jobs are visible only to
// their owner.
func SyncStatusHandler(manager *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := manager.GetJob(chi.URLParam(r, "jobID"))
		if job == nil || job.UserID != userFrom(r) {
			writeError(w, r, errs.NotFoundf("job not found"))
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// SyncJobsHandler lists the caller's recent jobs.
func SyncJobsHandler(manager *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
				limit = n
			}
		}
		list := manager.UserJobs(userFrom(r), limit)
		writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
	}
}

// CancelSyncHandler requests cancellation of a running job.
func CancelSyncHandler(manager *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		job := manager.GetJob(jobID)
		if job == nil || job.UserID != userFrom(r) {
			writeError(w, r, errs.NotFoundf("job not found"))
			return
		}
		if !manager.CancelJob(jobID) {
			writeError(w, r, errs.Validationf("job %s is not running", jobID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	}
}

// LibraryHandler lists the caller's imported library with pagination
// and an optional platform filter.
func LibraryHandler(libSvc *library.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 50
		if raw := q.Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		offset := 0
		if raw := q.Get("skip"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
				offset = n
			}
		}

		entries, total, err := libSvc.UserLibrary(r.Context(), userFrom(r), q.Get("platform"), limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]libraryEntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, viewEntry(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": views,
			"total": total,
		})
	}
}

// PlaytimeHandler sums the caller's playtime for one game across
// platforms.
func PlaytimeHandler(libSvc *library.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
		if err != nil {
			writeError(w, r, errs.Validationf("invalid game id"))
			return
		}
		total, err := libSvc.GamePlaytime(r.Context(), userFrom(r), gameID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"game_id":        gameID,
			"playtime_hours": total,
		})
	}
}
