package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack"
	"github.com/ZerkerEOD/krakenwifi/internal/config"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/internal/repository"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// StaleJobStore is the cleanup service's view of the job repository.
type StaleJobStore interface {
	FailStaleRunningJobs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (string, error)
}

// CleanupService periodically fails running jobs whose supervisor died
// and sweeps workspace directories left behind by them.
type CleanupService struct {
	cfg         *config.Config
	jobs        StaleJobStore
	broadcaster *ProgressBroadcaster
	cron        *cron.Cron
}

// NewCleanupService creates the cleanup service.
func NewCleanupService(cfg *config.Config, jobs StaleJobStore, broadcaster *ProgressBroadcaster) *CleanupService {
	return &CleanupService{
		cfg:         cfg,
		jobs:        jobs,
		broadcaster: broadcaster,
		cron:        cron.New(),
	}
}

// Start registers the cleanup schedule and begins running it. One sweep
// runs immediately so a restart repairs state without waiting for the
// first tick.
func (s *CleanupService) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.CleanupSchedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	debug.Info("Cleanup service started with schedule %q", s.cfg.CleanupSchedule)

	go s.sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *CleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	debug.Info("Cleanup service stopped")
}

func (s *CleanupService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.failStaleJobs(ctx)
	s.sweepWorkspaces(ctx)
}

// failStaleJobs fails rows that have been running longer than the
// runtime ceiling plus slack. A live supervisor would have ended them
// at the ceiling, so anything beyond it lost its process.
func (s *CleanupService) failStaleJobs(ctx context.Context) {
	cutoff := s.cfg.MaxRuntime + s.cfg.StaleRunningSlack
	ids, err := s.jobs.FailStaleRunningJobs(ctx, cutoff)
	if err != nil {
		debug.Error("Stale job sweep failed: %v", err)
		return
	}
	for _, id := range ids {
		debug.Warning("Marked stale running job %s as failed (running > %v)", id, cutoff)
		s.broadcaster.Publish(models.ProgressEvent{
			JobID:     id,
			Status:    models.JobStatusFailed,
			Timestamp: time.Now(),
			Metadata:  map[string]interface{}{"error": "job supervisor lost, marked stale"},
		})
	}
}

// sweepWorkspaces removes per-job workspace directories whose job is
// terminal or gone. Directories not named by a job UUID are left alone.
func (s *CleanupService) sweepWorkspaces(ctx context.Context) {
	root := filepath.Join(s.cfg.WorkspaceRoot, attack.ToolName)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Warning("Cannot read workspace root %s: %v", root, err)
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}

		status, err := s.jobs.GetJobStatus(ctx, jobID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Job row deleted, the workspace is orphaned.
		case err != nil:
			debug.Warning("Skipping workspace %s, status lookup failed: %v", entry.Name(), err)
			continue
		case !models.IsTerminalStatus(status):
			continue
		}

		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			debug.Warning("Failed to remove orphaned workspace %s: %v", path, err)
			continue
		}
		debug.Info("Removed orphaned workspace %s", path)
	}
}
