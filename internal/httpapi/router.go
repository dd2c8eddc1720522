package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/questlog/questlog/internal/auth/oauth"
	"github.com/questlog/questlog/internal/jobs"
	"github.com/questlog/questlog/internal/library"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	OAuth       *oauth.Service
	Library     *library.Service
	Jobs        *jobs.Manager
	FrontendURL string
}

// NewRouter builds the API router. Everything lives under /api/v1; the
// OAuth callback is the only route without caller authentication since
// the provider redirect cannot carry our headers.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/oauth/{platform}/callback", OAuthCallbackHandler(d.OAuth, d.FrontendURL))

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/oauth/{platform}", InitiateOAuthHandler(d.OAuth))
			r.Get("/oauth/accounts", LinkedAccountsHandler(d.OAuth))
			r.Delete("/oauth/accounts/{platform}", UnlinkHandler(d.OAuth))

			r.Post("/library/sync", StartSyncHandler(d.Library, d.Jobs))
			r.Get("/library/sync/status/{jobID}", SyncStatusHandler(d.Jobs))
			r.Get("/library/sync/jobs", SyncJobsHandler(d.Jobs))
			r.Post("/library/sync/{jobID}/cancel", CancelSyncHandler(d.Jobs))

			r.Get("/library", LibraryHandler(d.Library))
			r.Get("/library/playtime/{gameID}", PlaytimeHandler(d.Library))
		})
	})

	return r
}
