package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack"
	"github.com/ZerkerEOD/krakenwifi/internal/config"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.Job
	claimDeny bool
	completed []uuid.UUID
	failed    map[uuid.UUID]string
}

func newFakeQueue(jobs ...*models.Job) *fakeQueue {
	q := &fakeQueue{
		jobs:   make(map[uuid.UUID]*models.Job),
		failed: make(map[uuid.UUID]string),
	}
	for _, job := range jobs {
		q.jobs[job.ID] = job
	}
	return q
}

func (q *fakeQueue) ListEligibleJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var eligible []*models.Job
	for _, job := range q.jobs {
		if job.Status == models.JobStatusPending && q.dependenciesMet(job) && len(eligible) < limit {
			eligible = append(eligible, job)
		}
	}
	return eligible, nil
}

// dependenciesMet mirrors the queue's eligibility rule: every listed
// dependency must exist and be completed. A deleted dependency row
// keeps its dependents parked.
func (q *fakeQueue) dependenciesMet(job *models.Job) bool {
	for _, depID := range job.DependsOn {
		dep, ok := q.jobs[depID]
		if !ok || dep.Status != models.JobStatusCompleted {
			return false
		}
	}
	return true
}

func (q *fakeQueue) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimDeny {
		return false, nil
	}
	job, ok := q.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		return false, nil
	}
	job.Status = models.JobStatusRunning
	return true, nil
}

func (q *fakeQueue) CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[id].Status = models.JobStatusCompleted
	q.jobs[id].Result = result
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[id].Status = models.JobStatusFailed
	q.failed[id] = errorMessage
	return nil
}

func (q *fakeQueue) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[id].Status, nil
}

func (q *fakeQueue) status(id uuid.UUID) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[id].Status
}

func (q *fakeQueue) failureMessage(id uuid.UUID) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed[id]
}

type fakeNetworks struct {
	mu         sync.Mutex
	processing map[uuid.UUID]bool
	busy       bool
}

func newFakeNetworks() *fakeNetworks {
	return &fakeNetworks{processing: make(map[uuid.UUID]bool)}
}

func (n *fakeNetworks) GetByID(ctx context.Context, id uuid.UUID) (*models.Network, error) {
	return &models.Network{
		ID:          id,
		BSSID:       "aa:bb:cc:dd:ee:ff",
		CapturePath: "/captures/office.pcapng",
	}, nil
}

func (n *fakeNetworks) SetProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.busy || n.processing[id] {
		return false, nil
	}
	n.processing[id] = true
	return true, nil
}

func (n *fakeNetworks) ClearProcessing(ctx context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.processing, id)
	return nil
}

func (n *fakeNetworks) isProcessing(id uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.processing[id]
}

type fakeDictionaries struct{}

func (fakeDictionaries) GetFilePath(ctx context.Context, id uuid.UUID) (string, error) {
	return "/dictionaries/rockyou.txt", nil
}

type fakeRunner struct {
	mu      sync.Mutex
	result  *attack.RunResult
	err     error
	block   chan struct{}
	active  int
	maxSeen int
}

func (r *fakeRunner) Run(ctx context.Context, input attack.RunInput) (*attack.RunResult, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}

	r.mu.Lock()
	r.active--
	result, err := r.result, r.err
	r.mu.Unlock()
	return result, err
}

func (r *fakeRunner) maxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxSeen
}

func pendingJob() *models.Job {
	return &models.Job{
		ID:           uuid.New(),
		NetworkID:    uuid.New(),
		DictionaryID: uuid.New(),
		Status:       models.JobStatusPending,
		Priority:     models.JobPriorityNormal,
		AttackMode:   models.AttackModePMKID,
	}
}

func schedulerConfig(slots int) *config.Config {
	return &config.Config{
		MaxConcurrentJobs: slots,
		SchedulerInterval: 10 * time.Millisecond,
	}
}

func startScheduler(t *testing.T, cfg *config.Config, queue *fakeQueue, networks *fakeNetworks, runner *fakeRunner) *Scheduler {
	t.Helper()
	s := NewScheduler(cfg, queue, networks, fakeDictionaries{}, runner, NewProgressBroadcaster(0))
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestSchedulerRunsEligibleJobToCompletion(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	networks := newFakeNetworks()
	runner := &fakeRunner{result: &attack.RunResult{
		ExitCode: 0,
		Duration: 3 * time.Second,
		Cracks:   []models.CrackResult{{Hash: "deadbeef", Password: "hunter2"}},
	}}

	startScheduler(t, schedulerConfig(2), queue, networks, runner)

	require.Eventually(t, func() bool {
		return queue.status(job.ID) == models.JobStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, queue.jobs[job.ID].Result.PasswordsFound)
	assert.False(t, networks.isProcessing(job.NetworkID), "network gate released after the run")
}

func TestSchedulerSkipsLostClaims(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	queue.claimDeny = true
	networks := newFakeNetworks()
	runner := &fakeRunner{result: &attack.RunResult{}}

	startScheduler(t, schedulerConfig(2), queue, networks, runner)

	// The claim keeps losing; the network gate must not stay held.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.JobStatusPending, queue.status(job.ID))
	assert.False(t, networks.isProcessing(job.NetworkID))
	assert.Zero(t, runner.maxConcurrent())
}

func TestSchedulerRespectsBusyNetwork(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	networks := newFakeNetworks()
	networks.busy = true
	runner := &fakeRunner{result: &attack.RunResult{}}

	startScheduler(t, schedulerConfig(2), queue, networks, runner)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.JobStatusPending, queue.status(job.ID))
	assert.Zero(t, runner.maxConcurrent())
}

func TestSchedulerRecordsRunFailure(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	runner := &fakeRunner{err: &attack.ProcessError{Err: assert.AnError, StderrTail: "clGetDeviceIDs"}}

	startScheduler(t, schedulerConfig(2), queue, newFakeNetworks(), runner)

	require.Eventually(t, func() bool {
		return queue.status(job.ID) == models.JobStatusFailed
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, queue.failureMessage(job.ID), "clGetDeviceIDs")
}

func TestSchedulerMapsTimeoutToFailure(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	runner := &fakeRunner{err: attack.ErrRuntimeTimeout}

	startScheduler(t, schedulerConfig(2), queue, newFakeNetworks(), runner)

	require.Eventually(t, func() bool {
		return queue.status(job.ID) == models.JobStatusFailed
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "runtime ceiling exceeded", queue.failureMessage(job.ID))
}

func TestSchedulerLeavesCancelledJobsAlone(t *testing.T) {
	job := pendingJob()
	queue := newFakeQueue(job)
	runner := &fakeRunner{err: attack.ErrCancelled}

	startScheduler(t, schedulerConfig(2), queue, newFakeNetworks(), runner)

	require.Eventually(t, func() bool {
		return queue.status(job.ID) == models.JobStatusRunning
	}, 3*time.Second, 10*time.Millisecond)

	// The executor reports cancellation after the cancel request already
	// moved the row; the scheduler must not overwrite it.
	time.Sleep(100 * time.Millisecond)
	queue.mu.Lock()
	defer queue.mu.Unlock()
	assert.Empty(t, queue.failed)
	assert.Empty(t, queue.completed)
}

func TestSchedulerHonorsWorkerSlotLimit(t *testing.T) {
	jobs := []*models.Job{pendingJob(), pendingJob(), pendingJob(), pendingJob()}
	queue := newFakeQueue(jobs...)
	block := make(chan struct{})
	runner := &fakeRunner{result: &attack.RunResult{}, block: block}

	startScheduler(t, schedulerConfig(2), queue, newFakeNetworks(), runner)

	require.Eventually(t, func() bool {
		return runner.maxConcurrent() == 2
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, runner.maxConcurrent(), "never more runs in flight than worker slots")

	close(block)
	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.completed) == len(jobs)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerGatesOnDependencies(t *testing.T) {
	first := pendingJob()
	second := pendingJob()
	second.DependsOn = []uuid.UUID{first.ID}
	orphan := pendingJob()
	orphan.DependsOn = []uuid.UUID{uuid.New()}

	queue := newFakeQueue(first, second, orphan)
	block := make(chan struct{})
	runner := &fakeRunner{result: &attack.RunResult{}, block: block}

	startScheduler(t, schedulerConfig(4), queue, newFakeNetworks(), runner)

	require.Eventually(t, func() bool {
		return queue.status(first.ID) == models.JobStatusRunning
	}, 3*time.Second, 10*time.Millisecond)

	// While the dependency is still running, its dependent must stay
	// parked even with free worker slots.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.JobStatusPending, queue.status(second.ID))
	assert.Equal(t, 1, runner.maxConcurrent())

	close(block)
	require.Eventually(t, func() bool {
		return queue.status(second.ID) == models.JobStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	// A dependency that no longer exists never completes, so its
	// dependent never dispatches.
	assert.Equal(t, models.JobStatusPending, queue.status(orphan.ID))
}
