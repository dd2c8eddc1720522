package main

import (
	"log"
	"net/http"

	"github.com/questlog/questlog/internal/auth/oauth"
	"github.com/questlog/questlog/internal/auth/state"
	"github.com/questlog/questlog/internal/catalog"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/httpapi"
	"github.com/questlog/questlog/internal/jobs"
	"github.com/questlog/questlog/internal/library"
	"github.com/questlog/questlog/internal/platform"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Stores
	accounts := store.NewLinkedAccounts(database)
	libraryStore := store.NewLibrary(database)
	games := store.NewGames(database)

	// Platform clients
	steam := platform.NewSteamClient(cfg.Steam.APIKey)
	psn := platform.NewPlayStationClient(cfg.PSN.ClientID, cfg.PSN.ClientSecret)
	xbox := platform.NewXboxClient(cfg.Xbox.ClientID, cfg.Xbox.ClientSecret)

	// Catalog providers
	igdb := catalog.NewIGDBClient(cfg.IGDB.ClientID, cfg.IGDB.ClientSecret)
	rawg := catalog.NewRAWGClient(cfg.RAWG.APIKey)
	catalogSvc := catalog.NewService(games, igdb, rawg)

	// Services
	states := state.NewStore()
	oauthSvc := oauth.NewService(accounts, libraryStore, states, steam, psn, xbox, cfg.PublicURL)
	librarySvc := library.NewService(accounts, libraryStore, games, oauthSvc, catalogSvc, steam, psn, xbox)
	jobManager := jobs.NewManager()

	router := httpapi.NewRouter(httpapi.Deps{
		OAuth:       oauthSvc,
		Library:     librarySvc,
		Jobs:        jobManager,
		FrontendURL: cfg.FrontendURL,
	})

	log.Printf("Questlog %s listening on %s", version.String(), cfg.Addr())
	if err := http.ListenAndServe(cfg.Addr(), router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
