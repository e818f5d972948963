package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/api"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/handlers"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/internal/database"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/emby"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/library"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/mappings"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/registry"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/scheduler"
	syncsvc "github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/sync"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/trakt"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/utils"
)

func main() {
	storageDir := os.Getenv("T2E_DATA_DIR")
	if storageDir == "" {
		storageDir = "./data"
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		log.Fatalf("[main] failed to create data directory: %v", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   filepath.Join(storageDir, "trakt2emby.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}))

	configManager, err := config.NewManager(storageDir)
	if err != nil {
		log.Fatalf("[main] failed to create config manager: %v", err)
	}
	settings, err := configManager.Load()
	if err != nil {
		log.Fatalf("[main] failed to load settings: %v", err)
	}
	if missing := settings.Validate(); len(missing) > 0 {
		log.Printf("[main] settings incomplete, configure before syncing: %v", missing)
	}

	db, err := database.NewDB(database.Config{
		DatabasePath: filepath.Join(storageDir, "trakt2emby.db"),
	})
	if err != nil {
		log.Fatalf("[main] failed to open database: %v", err)
	}
	defer db.Close()

	fs := afero.NewOsFs()

	traktClient := trakt.NewClient(settings.Trakt.ClientID, settings.Trakt.ClientSecret)
	tokens, err := trakt.NewTokenStore(fs, storageDir, traktClient)
	if err != nil {
		log.Fatalf("[main] failed to load token store: %v", err)
	}

	embyClient := emby.NewClient(settings.Emby.ServerURL, settings.Emby.APIKey)
	index := library.NewIndex(embyClient)

	mappingsService := mappings.NewService(database.NewMappingRepository(db.Connection()))

	registryService, err := registry.NewService(fs, storageDir)
	if err != nil {
		log.Fatalf("[main] failed to load registries: %v", err)
	}

	engine := syncsvc.NewEngine(
		embyClient,
		index,
		&syncsvc.TraktSource{Client: traktClient, Tokens: tokens},
		mappingsService,
		registryService,
	)
	registryService.SetResolver(engine, mappingsService)

	schedulerService := scheduler.NewService(configManager, engine)
	if err := schedulerService.Start(context.Background()); err != nil {
		log.Fatalf("[main] failed to start scheduler: %v", err)
	}

	authHandler := handlers.NewAuthHandler(configManager, traktClient, tokens)
	syncHandler := handlers.NewSyncHandler(configManager, engine, schedulerService)
	missingHandler := handlers.NewMissingHandler(registryService)
	mappingsHandler := handlers.NewMappingsHandler(mappingsService)
	settingsHandler := handlers.NewSettingsHandler(configManager, embyClient, traktClient)
	listsHandler := handlers.NewListsHandler(configManager)
	libraryHandler := handlers.NewLibraryHandler(index)

	authLimiter := api.NewIPRateLimiter(rate.Every(6*time.Second), 10)

	router := utils.NewRouter()

	router.HandleFunc("/api/auth/trakt/start", api.RateLimitHandlerFunc(authLimiter, authHandler.Start)).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/trakt/poll", api.RateLimitHandlerFunc(authLimiter, authHandler.Poll)).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/trakt/status", authHandler.Status).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/trakt/logout", authHandler.Logout).Methods(http.MethodPost)

	router.HandleFunc("/api/sync", syncHandler.Trigger).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/status", syncHandler.Status).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/lists/{id}", syncHandler.TriggerList).Methods(http.MethodPost)

	router.HandleFunc("/api/missing", missingHandler.List).Methods(http.MethodGet)
	router.HandleFunc("/api/missing/ignore", missingHandler.IgnoreMany).Methods(http.MethodPost)
	router.HandleFunc("/api/missing/clear", missingHandler.Clear).Methods(http.MethodPost)
	router.HandleFunc("/api/missing/{index:[0-9]+}/ignore", missingHandler.Ignore).Methods(http.MethodPost)
	router.HandleFunc("/api/missing/{index:[0-9]+}/recheck", missingHandler.Recheck).Methods(http.MethodPost)
	router.HandleFunc("/api/ignored", missingHandler.ListIgnored).Methods(http.MethodGet)
	router.HandleFunc("/api/ignored/{index:[0-9]+}/unignore", missingHandler.Unignore).Methods(http.MethodPost)

	router.HandleFunc("/api/mappings", mappingsHandler.List).Methods(http.MethodGet)
	router.HandleFunc("/api/mappings/count", mappingsHandler.Count).Methods(http.MethodGet)

	router.HandleFunc("/api/settings", settingsHandler.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", settingsHandler.Update).Methods(http.MethodPut)
	router.HandleFunc("/api/settings/test/emby", settingsHandler.TestEmby).Methods(http.MethodPost)

	router.HandleFunc("/api/lists", listsHandler.List).Methods(http.MethodGet)
	router.HandleFunc("/api/lists", listsHandler.Create).Methods(http.MethodPost)
	router.HandleFunc("/api/lists/{id}", listsHandler.Update).Methods(http.MethodPut)
	router.HandleFunc("/api/lists/{id}", listsHandler.Delete).Methods(http.MethodDelete)

	router.HandleFunc("/api/library/refresh", libraryHandler.Refresh).Methods(http.MethodPost)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
	if err := schedulerService.Stop(shutdownCtx); err != nil {
		log.Printf("[main] scheduler shutdown: %v", err)
	}
}
