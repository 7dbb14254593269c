package routes

import (
	"net/http"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/db"
	"github.com/ZerkerEOD/krakenwifi/internal/handlers/diagnostics"
	jobshandler "github.com/ZerkerEOD/krakenwifi/internal/handlers/jobs"
	wshandler "github.com/ZerkerEOD/krakenwifi/internal/handlers/websocket"
	"github.com/ZerkerEOD/krakenwifi/internal/repository"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/gorilla/mux"
)

// SetupRoutes configures the job API and the progress WebSocket.
func SetupRoutes(r *mux.Router, database *db.DB, progressHub *wshandler.ProgressHub) {
	debug.Info("Setting up API routes")

	jobRepo := repository.NewJobRepository(database)
	networkRepo := repository.NewNetworkRepository(database)
	dictionaryRepo := repository.NewDictionaryRepository(database)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET", "OPTIONS")

	jobsHandler := jobshandler.NewHandler(jobRepo, networkRepo, dictionaryRepo)
	api.HandleFunc("/jobs", jobsHandler.CreateJob).Methods("POST", "OPTIONS")
	api.HandleFunc("/jobs", jobsHandler.ListJobs).Methods("GET", "OPTIONS")
	api.HandleFunc("/jobs/active", jobsHandler.ListActiveJobs).Methods("GET", "OPTIONS")
	api.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods("GET", "OPTIONS")
	api.HandleFunc("/jobs/{id}/cancel", jobsHandler.CancelJob).Methods("POST", "OPTIONS")
	api.HandleFunc("/jobs/{id}/retry", jobsHandler.RetryJob).Methods("POST", "OPTIONS")
	api.HandleFunc("/diagnostics/logs", diagnostics.GetLogs).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws/progress", progressHub.ServeWS).Methods("GET")
}

// loggingMiddleware logs each request with its duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		debug.Debug("%s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}
