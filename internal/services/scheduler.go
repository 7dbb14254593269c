package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack"
	"github.com/ZerkerEOD/krakenwifi/internal/config"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
)

// JobQueue is the scheduler's view of the job repository.
type JobQueue interface {
	ListEligibleJobs(ctx context.Context, limit int) ([]*models.Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	GetJobStatus(ctx context.Context, id uuid.UUID) (string, error)
}

// NetworkStore guards the one-active-job-per-network invariant.
type NetworkStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Network, error)
	SetProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	ClearProcessing(ctx context.Context, id uuid.UUID) error
}

// DictionaryStore resolves wordlist paths for claimed jobs.
type DictionaryStore interface {
	GetFilePath(ctx context.Context, id uuid.UUID) (string, error)
}

// AttackRunner executes one claimed job to a terminal outcome.
type AttackRunner interface {
	Run(ctx context.Context, input attack.RunInput) (*attack.RunResult, error)
}

// Scheduler owns the claim loop: it scans for eligible jobs, claims them
// with conditional updates, and runs each inside a bounded worker pool.
// Multiple scheduler instances against the same database are safe, the
// claim either wins or skips.
type Scheduler struct {
	cfg          *config.Config
	jobs         JobQueue
	networks     NetworkStore
	dictionaries DictionaryStore
	runner       AttackRunner
	broadcaster  *ProgressBroadcaster

	slots  chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler with MaxConcurrentJobs worker slots.
func NewScheduler(cfg *config.Config, jobs JobQueue, networks NetworkStore, dictionaries DictionaryStore, runner AttackRunner, broadcaster *ProgressBroadcaster) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		jobs:         jobs,
		networks:     networks,
		dictionaries: dictionaries,
		runner:       runner,
		broadcaster:  broadcaster,
		slots:        make(chan struct{}, cfg.MaxConcurrentJobs),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scan loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	debug.Info("Starting scheduler with %d worker slots, scan interval %v", s.cfg.MaxConcurrentJobs, s.cfg.SchedulerInterval)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts scanning and waits for in-flight jobs up to the context
// deadline. Running executors observe their own cancellation through
// the job store, not through Stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		debug.Info("Scheduler stopped cleanly")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

// scanOnce fills free worker slots with claimable jobs. Claims that
// lose to another scheduler are skipped silently.
func (s *Scheduler) scanOnce(ctx context.Context) {
	free := cap(s.slots) - len(s.slots)
	if free == 0 {
		return
	}

	eligible, err := s.jobs.ListEligibleJobs(ctx, free)
	if err != nil {
		debug.Error("Failed to list eligible jobs: %v", err)
		return
	}

	for _, job := range eligible {
		select {
		case s.slots <- struct{}{}:
		default:
			return
		}

		if !s.dispatch(ctx, job) {
			<-s.slots
		}
	}
}

// dispatch claims one job and hands it to a worker goroutine. Returns
// false when the claim was lost or preconditions failed, leaving the
// slot to be released by the caller.
func (s *Scheduler) dispatch(ctx context.Context, job *models.Job) bool {
	// The network gate is taken first so a lost job claim can release it
	// without inventing a reverse job transition.
	acquired, err := s.networks.SetProcessing(ctx, job.NetworkID)
	if err != nil {
		debug.Error("Failed to gate network %s for job %s: %v", job.NetworkID, job.ID, err)
		return false
	}
	if !acquired {
		debug.Debug("Network %s busy, job %s stays queued", job.NetworkID, job.ID)
		return false
	}

	claimed, err := s.jobs.ClaimJob(ctx, job.ID)
	if err != nil || !claimed {
		if err != nil {
			debug.Error("Failed to claim job %s: %v", job.ID, err)
		}
		s.clearNetwork(job.NetworkID)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		defer s.clearNetwork(job.NetworkID)
		s.execute(ctx, job)
	}()
	return true
}

// execute runs one claimed job and records its terminal state.
func (s *Scheduler) execute(ctx context.Context, job *models.Job) {
	debug.Info("Executing job %s (%s, priority %s) against network %s", job.ID, job.AttackMode, job.Priority, job.NetworkID)
	s.broadcaster.Publish(models.ProgressEvent{
		JobID:     job.ID,
		Status:    models.JobStatusRunning,
		Progress:  0,
		Timestamp: time.Now(),
	})

	network, err := s.networks.GetByID(ctx, job.NetworkID)
	if err != nil {
		s.failJob(ctx, job, "failed to resolve network: "+err.Error())
		return
	}
	dictionaryPath, err := s.dictionaries.GetFilePath(ctx, job.DictionaryID)
	if err != nil {
		s.failJob(ctx, job, "failed to resolve dictionary: "+err.Error())
		return
	}

	result, runErr := s.runner.Run(ctx, attack.RunInput{
		Job:            job,
		CapturePath:    network.CapturePath,
		BSSID:          network.BSSID,
		DictionaryPath: dictionaryPath,
	})

	switch {
	case runErr == nil:
		jobResult := &models.JobResult{
			PasswordsFound:   len(result.Cracks),
			Cracks:           result.Cracks,
			ProcessingTimeMS: result.Duration.Milliseconds(),
			ExitCode:         result.ExitCode,
		}
		if err := s.jobs.CompleteJob(ctx, job.ID, jobResult); err != nil {
			debug.Error("Failed to record completion of job %s: %v", job.ID, err)
			s.publishTerminal(ctx, job)
			return
		}
		debug.Info("Job %s completed with %d cracked passwords", job.ID, jobResult.PasswordsFound)
		s.broadcaster.Publish(models.ProgressEvent{
			JobID:     job.ID,
			Status:    models.JobStatusCompleted,
			Progress:  100,
			Timestamp: time.Now(),
			Metadata:  map[string]interface{}{"passwords_found": jobResult.PasswordsFound},
		})

	case errors.Is(runErr, attack.ErrCancelled):
		// The cancel request already moved the row, nothing to transition.
		debug.Info("Job %s terminated by cancellation", job.ID)
		s.publishTerminal(ctx, job)

	case errors.Is(runErr, attack.ErrRuntimeTimeout):
		s.failJob(ctx, job, "runtime ceiling exceeded")

	default:
		s.failJob(ctx, job, runErr.Error())
	}
}

// failJob records a failure, tolerating the row having been cancelled
// underneath the failing run.
func (s *Scheduler) failJob(ctx context.Context, job *models.Job, message string) {
	debug.Warning("Job %s failed: %s", job.ID, message)
	if err := s.jobs.FailJob(ctx, job.ID, message); err != nil {
		var terr *models.InvalidTransitionError
		if !errors.As(err, &terr) {
			debug.Error("Failed to record failure of job %s: %v", job.ID, err)
		}
		s.publishTerminal(ctx, job)
		return
	}
	s.broadcaster.Publish(models.ProgressEvent{
		JobID:     job.ID,
		Status:    models.JobStatusFailed,
		Progress:  job.Progress,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"error": message},
	})
}

// publishTerminal re-reads the job's actual terminal status before
// broadcasting, for paths where this scheduler did not perform the
// transition itself.
func (s *Scheduler) publishTerminal(ctx context.Context, job *models.Job) {
	status, err := s.jobs.GetJobStatus(ctx, job.ID)
	if err != nil {
		debug.Warning("Cannot broadcast terminal state of job %s: %v", job.ID, err)
		return
	}
	s.broadcaster.Publish(models.ProgressEvent{
		JobID:     job.ID,
		Status:    status,
		Progress:  job.Progress,
		Timestamp: time.Now(),
	})
}

func (s *Scheduler) clearNetwork(networkID uuid.UUID) {
	// Release must survive a cancelled request context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.networks.ClearProcessing(ctx, networkID); err != nil {
		debug.Error("Failed to release network %s: %v", networkID, err)
	}
}
