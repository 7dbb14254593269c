package attack

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack/pathcheck"
	"github.com/ZerkerEOD/krakenwifi/internal/config"
	"github.com/ZerkerEOD/krakenwifi/internal/hostmetrics"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
)

// Artifact file extensions per attack mode.
const (
	ArtifactExtPMKID     = ".16800"
	ArtifactExtHandshake = ".hccapx"
)

// stderrTailBytes is how much captured stderr is attached to failures.
const stderrTailBytes = 512

// JobStore is the slice of the job repository the executor needs: the
// cancellation poll and progress persistence.
type JobStore interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, error)
	UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int) error
}

// Extractor is the handshake/PMKID extraction collaborator. It is a
// black box to this core: given a capture it either materializes an
// attack-ready artifact at artifactPath or fails.
type Extractor interface {
	Extract(ctx context.Context, capturePath, artifactPath, attackMode, bssid string) error
}

// ProgressPublisher receives best-effort progress events.
type ProgressPublisher interface {
	Publish(event models.ProgressEvent)
}

// RunInput carries one claimed job with its resolved collaborator data.
type RunInput struct {
	Job            *models.Job
	CapturePath    string
	BSSID          string
	DictionaryPath string
}

// RunResult is the structured outcome of one supervised run.
type RunResult struct {
	ExitCode int
	Duration time.Duration
	Cracks   []models.CrackResult
	Stdout   string
	Stderr   string
}

// Executor runs one validated attack per call: it builds the command,
// supervises the process, polls for cancellation, enforces the runtime
// ceiling, reports progress, and parses results.
type Executor struct {
	cfg       *config.Config
	store     JobStore
	extractor Extractor
	publisher ProgressPublisher
}

// NewExecutor creates an attack executor.
func NewExecutor(cfg *config.Config, store JobStore, extractor Extractor, publisher ProgressPublisher) *Executor {
	return &Executor{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		publisher: publisher,
	}
}

// Run executes the job to completion, cancellation, or timeout.
// Error mapping: *ValidationError and *ExtractionError mean no process
// was spawned; *ProcessError, ErrRuntimeTimeout, and ErrCancelled refer
// to the spawned process. A nil error with zero cracks is a valid
// successful outcome.
func (e *Executor) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	job := input.Job

	dictionaryPath, err := pathcheck.ValidateFilePath(input.DictionaryPath, pathcheck.Policy{
		AllowedBaseDirs: []string{e.cfg.DictionaryDir},
		MustExist:       true,
	})
	if err != nil {
		return nil, &ValidationError{Field: "dictionary_path", Err: err}
	}

	artifactPath, err := e.ensureArtifact(ctx, input)
	if err != nil {
		return nil, err
	}

	spec, err := NewAttackSpec(job, artifactPath, dictionaryPath, e.cfg.WorkspaceRoot, e.cfg.WorkloadProfile, e.cfg.MaxRuntime)
	if err != nil {
		return nil, err
	}

	argv, err := BuildCommand(e.cfg.HashcatBinary, spec)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(spec.WorkspaceDir, 0755); err != nil {
		return nil, &ProcessError{Err: fmt.Errorf("failed to create workspace: %w", err)}
	}
	defer e.cleanupWorkspace(spec)

	debug.Info("Starting attack for job %s: %s", job.ID, QuoteForDisplay(argv))
	return e.supervise(ctx, job, spec, argv)
}

// ensureArtifact resolves the expected artifact path for the job's
// network, invoking the extraction collaborator synchronously when the
// file is not yet on disk.
func (e *Executor) ensureArtifact(ctx context.Context, input RunInput) (string, error) {
	ext := ArtifactExtHandshake
	if input.Job.AttackMode == models.AttackModePMKID {
		ext = ArtifactExtPMKID
	}

	expected, err := pathcheck.SafeJoin(e.cfg.ArtifactDir, input.Job.NetworkID.String()+ext)
	if err != nil {
		return "", &ValidationError{Field: "artifact_path", Err: err}
	}

	if _, statErr := os.Stat(expected); statErr == nil {
		return e.validateArtifact(expected)
	}

	debug.Info("Artifact %s missing for job %s, invoking extraction", expected, input.Job.ID)
	capturePath, err := pathcheck.ValidateFilePath(input.CapturePath, pathcheck.Policy{
		AllowedBaseDirs: []string{e.cfg.CaptureDir},
		MustExist:       true,
	})
	if err != nil {
		return "", &ValidationError{Field: "capture_path", Err: err}
	}

	if err := e.extractor.Extract(ctx, capturePath, expected, input.Job.AttackMode, input.BSSID); err != nil {
		return "", &ExtractionError{CapturePath: capturePath, Err: err}
	}
	return e.validateArtifact(expected)
}

func (e *Executor) validateArtifact(path string) (string, error) {
	validated, err := pathcheck.ValidateFilePath(path, pathcheck.Policy{
		AllowedBaseDirs: []string{e.cfg.ArtifactDir, e.cfg.CaptureDir},
		MustExist:       true,
	})
	if err != nil {
		return "", &ValidationError{Field: "artifact_path", Err: err}
	}
	return validated, nil
}

// supervise spawns the process and owns its whole lifetime. Every exit
// branch runs the same teardown: tickers and timers are stopped by the
// deferred calls, the workspace by the caller's deferred cleanup.
func (e *Executor) supervise(ctx context.Context, job *models.Job, spec *AttackSpec, argv []string) (*RunResult, error) {
	stdout := newBoundedBuffer(e.cfg.OutputBufferLimit)
	stderr := newBoundedBuffer(e.cfg.OutputBufferLimit)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.WorkspaceDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Err: fmt.Errorf("failed to start %s: %w", ToolName, err)}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	cancelTicker := time.NewTicker(e.cfg.CancelPollInterval)
	defer cancelTicker.Stop()
	progressTicker := time.NewTicker(e.cfg.ProgressInterval)
	defer progressTicker.Stop()
	timeoutTimer := time.NewTimer(spec.MaxRuntime)
	defer timeoutTimer.Stop()

	var timedOut, cancelled bool
	var waitErr error

supervision:
	for {
		select {
		case waitErr = <-done:
			break supervision

		case <-timeoutTimer.C:
			debug.Warning("Job %s exceeded runtime ceiling %v, terminating", job.ID, spec.MaxRuntime)
			timedOut = true
			waitErr = e.terminate(cmd, done)
			break supervision

		case <-ctx.Done():
			cancelled = true
			waitErr = e.terminate(cmd, done)
			break supervision

		case <-cancelTicker.C:
			status, err := e.store.GetJobStatus(ctx, job.ID)
			if err != nil {
				debug.Warning("Cancellation poll failed for job %s: %v", job.ID, err)
				continue
			}
			if status != models.JobStatusCancelled {
				continue
			}
			// Timeout wins when both fire in the same window.
			select {
			case <-timeoutTimer.C:
				timedOut = true
			default:
				cancelled = true
			}
			debug.Info("Job %s cancelled externally, terminating process", job.ID)
			waitErr = e.terminate(cmd, done)
			break supervision

		case <-progressTicker.C:
			e.reportProgress(ctx, job, startTime, spec.MaxRuntime)
		}
	}

	duration := time.Since(startTime)
	result := &RunResult{
		Duration: duration,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, waitErr),
	}

	switch {
	case timedOut:
		return result, ErrRuntimeTimeout
	case cancelled:
		return result, ErrCancelled
	}

	// hashcat exits 0 when something cracked and 1 when the keyspace was
	// exhausted without a crack. Both are completed runs.
	if waitErr != nil && result.ExitCode != 1 {
		return result, &ProcessError{
			Err:        fmt.Errorf("%s exited: %w", ToolName, waitErr),
			StderrTail: tail(result.Stderr, stderrTailBytes),
		}
	}

	cracks, err := ParseOutputFile(spec.OutputFile, HashTypeLabel(spec.AttackMode))
	if err != nil {
		return result, &ProcessError{
			Err:        fmt.Errorf("failed to parse output file: %w", err),
			StderrTail: tail(result.Stderr, stderrTailBytes),
		}
	}
	result.Cracks = cracks

	debug.Info("Job %s finished in %v with %d cracks (exit %d)", job.ID, duration, len(cracks), result.ExitCode)
	return result, nil
}

// terminate asks the process to exit and escalates to a kill after the
// grace period. Always returns the process's wait error.
func (e *Executor) terminate(cmd *exec.Cmd, done chan error) error {
	if cmd.Process == nil {
		return <-done
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		debug.Warning("SIGTERM failed, killing immediately: %v", err)
		_ = cmd.Process.Kill()
		return <-done
	}

	select {
	case err := <-done:
		return err
	case <-time.After(e.cfg.KillGracePeriod):
		debug.Warning("Process did not exit within grace period %v, killing", e.cfg.KillGracePeriod)
		_ = cmd.Process.Kill()
		return <-done
	}
}

// reportProgress derives a heuristic percentage from elapsed time
// against the ceiling, persists it, and broadcasts it. The estimate is
// cosmetic and capped below 100 until the run actually finishes.
func (e *Executor) reportProgress(ctx context.Context, job *models.Job, startTime time.Time, maxRuntime time.Duration) {
	elapsed := time.Since(startTime)
	progress := int(elapsed * 100 / maxRuntime)
	if progress > 99 {
		progress = 99
	}

	if err := e.store.UpdateProgress(ctx, job.ID, progress); err != nil {
		debug.Warning("Failed to persist progress for job %s: %v", job.ID, err)
	}

	metadata := hostmetrics.Snapshot()
	metadata["elapsed_seconds"] = int(elapsed.Seconds())
	e.publisher.Publish(models.ProgressEvent{
		JobID:     job.ID,
		Status:    models.JobStatusRunning,
		Progress:  progress,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

func (e *Executor) cleanupWorkspace(spec *AttackSpec) {
	if err := os.RemoveAll(spec.WorkspaceDir); err != nil {
		debug.Warning("Failed to remove workspace %s: %v", spec.WorkspaceDir, err)
	}
}

// exitCode extracts the process exit code, -1 when unknown.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
	}
	return -1
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// boundedBuffer accumulates writes as append-only chunks and joins them
// into a string only once, at process exit. Writes past the limit are
// silently dropped so a chatty process cannot grow memory unbounded.
type boundedBuffer struct {
	mu    sync.Mutex
	parts [][]byte
	size  int
	limit int
}

func newBoundedBuffer(limit int) *boundedBuffer {
	if limit <= 0 {
		limit = 1 << 20
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.size
	if remaining > 0 {
		chunk := p
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		owned := make([]byte, len(chunk))
		copy(owned, chunk)
		b.parts = append(b.parts, owned)
		b.size += len(owned)
	}
	// Report full consumption either way, dropped output is not an error.
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	joined := make([]byte, 0, b.size)
	for _, part := range b.parts {
		joined = append(joined, part...)
	}
	return string(joined)
}
