package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/internal/repository"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler handles crack-job API requests.
type Handler struct {
	jobRepo        *repository.JobRepository
	networkRepo    *repository.NetworkRepository
	dictionaryRepo *repository.DictionaryRepository
}

// NewHandler creates a new jobs handler
func NewHandler(jobRepo *repository.JobRepository, networkRepo *repository.NetworkRepository, dictionaryRepo *repository.DictionaryRepository) *Handler {
	return &Handler{
		jobRepo:        jobRepo,
		networkRepo:    networkRepo,
		dictionaryRepo: dictionaryRepo,
	}
}

// CreateJobRequest is the POST /jobs body.
type CreateJobRequest struct {
	Name         string           `json:"name"`
	AttackMode   string           `json:"attack_mode"`
	Priority     string           `json:"priority"`
	NetworkID    uuid.UUID        `json:"network_id"`
	DictionaryID uuid.UUID        `json:"dictionary_id"`
	Config       models.JobConfig `json:"config"`
	ScheduledAt  *time.Time       `json:"scheduled_at,omitempty"`
	DependsOn    []uuid.UUID      `json:"depends_on,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	UserID       uuid.UUID        `json:"user_id"`
}

// CreateJob queues a new crack job.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AttackMode != models.AttackModePMKID && req.AttackMode != models.AttackModeHandshake {
		http.Error(w, "Invalid attack mode", http.StatusBadRequest)
		return
	}
	switch req.Priority {
	case "", models.JobPriorityLow, models.JobPriorityNormal, models.JobPriorityHigh, models.JobPriorityCritical:
	default:
		http.Error(w, "Invalid priority", http.StatusBadRequest)
		return
	}

	if _, err := h.networkRepo.GetByID(r.Context(), req.NetworkID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Network not found", http.StatusNotFound)
			return
		}
		debug.Error("Failed to look up network %s: %v", req.NetworkID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if _, err := h.dictionaryRepo.GetByID(r.Context(), req.DictionaryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Dictionary not found", http.StatusNotFound)
			return
		}
		debug.Error("Failed to look up dictionary %s: %v", req.DictionaryID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := models.JobStatusPending
	if req.ScheduledAt != nil {
		status = models.JobStatusScheduled
	}
	job := &models.Job{
		Name:         req.Name,
		Status:       status,
		Priority:     req.Priority,
		AttackMode:   req.AttackMode,
		NetworkID:    req.NetworkID,
		DictionaryID: req.DictionaryID,
		Config:       req.Config,
		ScheduledAt:  req.ScheduledAt,
		DependsOn:    req.DependsOn,
		Tags:         req.Tags,
		UserID:       req.UserID,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		debug.Error("Failed to create job: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	debug.Info("Created job %s (%s, priority %s)", job.ID, job.AttackMode, job.Priority)
	writeJSON(w, http.StatusCreated, job)
}

// ListJobs returns jobs, optionally filtered by ?status= with
// ?limit=/?offset= pagination.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := queryInt(r, "offset", 0)

	jobs, err := h.jobRepo.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		debug.Error("Failed to list jobs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ListActiveJobs returns all currently running jobs.
func (h *Handler) ListActiveJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobRepo.ListActiveJobs(r.Context())
	if err != nil {
		debug.Error("Failed to list active jobs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob returns one job by ID.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		debug.Error("Failed to get job %s: %v", jobID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob requests cancellation. A running job's supervisor observes
// the transition on its next poll; the API call returns as soon as the
// row has moved.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	if err := h.jobRepo.CancelJob(r.Context(), jobID); err != nil {
		h.writeTransitionError(w, jobID, err)
		return
	}

	debug.Info("Cancellation requested for job %s", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": models.JobStatusCancelled})
}

// RetryJob resets a failed or cancelled job back to pending.
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	if err := h.jobRepo.ResetJobForRetry(r.Context(), jobID); err != nil {
		h.writeTransitionError(w, jobID, err)
		return
	}

	debug.Info("Job %s reset for retry", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": models.JobStatusPending})
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, jobID uuid.UUID, err error) {
	var terr *models.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":            "invalid state transition",
			"current_status":   terr.Current,
			"requested_status": terr.Requested,
		})
	default:
		debug.Error("Transition failed for job %s: %v", jobID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func pathJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	jobID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return jobID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		debug.Error("Failed to encode response: %v", err)
	}
}
