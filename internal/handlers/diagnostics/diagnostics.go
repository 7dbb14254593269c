// Package diagnostics exposes the in-memory log ring buffer for
// troubleshooting without shell access to the host.
package diagnostics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/logbuffer"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
)

// LogsResponse carries buffered log entries plus the active level so a
// reader can tell whether the levels they need were being captured.
type LogsResponse struct {
	Level   string               `json:"level"`
	Count   int                  `json:"count"`
	Entries []logbuffer.LogEntry `json:"entries"`
}

// GetLogs returns buffered log entries. By default it returns the whole
// buffer; ?hours_back=N restricts it to entries newer than N hours.
func GetLogs(w http.ResponseWriter, r *http.Request) {
	var entries []logbuffer.LogEntry

	hoursBack := 0
	if raw := r.URL.Query().Get("hours_back"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "hours_back must be a non-negative integer", http.StatusBadRequest)
			return
		}
		hoursBack = parsed
	}

	if hoursBack > 0 {
		since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)
		entries = debug.GetBufferedLogs(since)
	} else {
		entries = debug.GetAllBufferedLogs()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(LogsResponse{
		Level:   debug.GetLogLevelName(),
		Count:   len(entries),
		Entries: entries,
	}); err != nil {
		debug.Error("Failed to encode diagnostics logs response: %v", err)
	}
}
