package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack"
	"github.com/ZerkerEOD/krakenwifi/internal/config"
	"github.com/ZerkerEOD/krakenwifi/internal/db"
	"github.com/ZerkerEOD/krakenwifi/internal/extraction"
	wshandler "github.com/ZerkerEOD/krakenwifi/internal/handlers/websocket"
	"github.com/ZerkerEOD/krakenwifi/internal/repository"
	"github.com/ZerkerEOD/krakenwifi/internal/routes"
	"github.com/ZerkerEOD/krakenwifi/internal/services"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/gorilla/mux"
)

const migrationsDir = "migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		debug.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		debug.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations(migrationsDir); err != nil {
		debug.Error("Failed to run migrations: %v", err)
		os.Exit(1)
	}

	jobRepo := repository.NewJobRepository(database)
	networkRepo := repository.NewNetworkRepository(database)
	dictionaryRepo := repository.NewDictionaryRepository(database)

	broadcaster := services.NewProgressBroadcaster(time.Second)
	progressHub := wshandler.NewProgressHub()
	broadcaster.Subscribe(progressHub)

	extractor := extraction.NewToolExtractor(cfg.ExtractorBinary)
	executor := attack.NewExecutor(cfg, jobRepo, extractor, broadcaster)

	scheduler := services.NewScheduler(cfg, jobRepo, networkRepo, dictionaryRepo, executor, broadcaster)
	cleanup := services.NewCleanupService(cfg, jobRepo, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	if err := cleanup.Start(); err != nil {
		debug.Error("Failed to start cleanup service: %v", err)
		os.Exit(1)
	}

	router := mux.NewRouter()
	routes.SetupRoutes(router, database, progressHub)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		debug.Info("Server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			debug.Error("Server failed: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		debug.Info("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		debug.Warning("HTTP shutdown incomplete: %v", err)
	}
	cleanup.Stop()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		debug.Warning("Scheduler did not drain in time: %v", err)
	}
	debug.Info("Shutdown complete")
}
