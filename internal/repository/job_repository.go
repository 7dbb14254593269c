package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/db"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// jobColumns is the canonical select list shared by every job read.
const jobColumns = `
	id, name, status, priority, attack_mode, network_id, dictionary_id,
	config, progress, started_at, ended_at, scheduled_at, cancelled_at,
	error_message, result, depends_on, tags, user_id, created_at, updated_at`

// JobRepository handles database operations for crack jobs. All state
// transitions go through conditional updates so concurrent schedulers
// and cancel requests cannot duplicate or clobber each other.
type JobRepository struct {
	db *db.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *db.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in pending (or scheduled) state.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Priority == "" {
		job.Priority = models.JobPriorityNormal
	}

	query := `
		INSERT INTO jobs (
			id, name, status, priority, attack_mode, network_id, dictionary_id,
			config, scheduled_at, depends_on, tags, user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	dependsOn := make([]string, len(job.DependsOn))
	for i, id := range job.DependsOn {
		dependsOn[i] = id.String()
	}

	err := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Name,
		job.Status,
		job.Priority,
		job.AttackMode,
		job.NetworkID,
		job.DictionaryID,
		job.Config,
		job.ScheduledAt,
		pq.Array(dependsOn),
		pq.Array(job.Tags),
		job.UserID,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a single job.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetJobStatus reads just the status column. Used by the executor's
// cancellation poll, so it stays a single-column read.
func (r *JobRepository) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("job %s not found: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get job status: %w", err)
	}
	return status, nil
}

// ClaimJob atomically moves an eligible job to running and stamps
// started_at. Returns false when another scheduler won the race or the
// job left the claimable set; that is a skip, not an error.
func (r *JobRepository) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1, started_at = NOW(), progress = 0, updated_at = NOW()
		WHERE id = $2
		  AND status IN ($3, $4)
		  AND (scheduled_at IS NULL OR scheduled_at <= NOW())
	`

	result, err := r.db.ExecContext(ctx, query,
		models.JobStatusRunning, id,
		models.JobStatusPending, models.JobStatusScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	if rows == 0 {
		debug.Debug("Claim lost for job %s, already taken or no longer eligible", id)
		return false, nil
	}
	return true, nil
}

// CancelJob marks a pending, scheduled, or running job cancelled. For
// running jobs the supervising executor observes the new status on its
// next poll; the row transition itself is immediate. A job already in a
// terminal state yields an InvalidTransitionError.
func (r *JobRepository) CancelJob(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, cancelled_at = NOW(),
		    ended_at = CASE WHEN status = $2 THEN NOW() ELSE ended_at END,
		    updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5, $2)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.JobStatusCancelled, models.JobStatusRunning, id,
		models.JobStatusPending, models.JobStatusScheduled,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	return r.explainNoTransition(ctx, result, id, models.JobStatusCancelled)
}

// CompleteJob moves a running job to completed with its result and full
// progress.
func (r *JobRepository) CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = 100, result = $2, ended_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query,
		models.JobStatusCompleted, result, id, models.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return r.explainNoTransition(ctx, res, id, models.JobStatusCompleted)
}

// FailJob moves a running job to failed with an error message.
func (r *JobRepository) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, ended_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query,
		models.JobStatusFailed, errorMessage, id, models.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return r.explainNoTransition(ctx, res, id, models.JobStatusFailed)
}

// UpdateProgress persists a heuristic progress percentage for a running
// job. GREATEST keeps the stored value monotone under out-of-order
// ticks, and writes against non-running jobs are silently dropped so a
// late tick cannot resurrect a finished row.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	query := `
		UPDATE jobs
		SET progress = GREATEST(progress, $1), updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	_, err := r.db.ExecContext(ctx, query, progress, id, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// ResetJobForRetry returns a failed or cancelled job to pending with
// cleared run state.
func (r *JobRepository) ResetJobForRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = 0, started_at = NULL, ended_at = NULL,
		    cancelled_at = NULL, error_message = NULL, result = NULL, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`

	res, err := r.db.ExecContext(ctx, query,
		models.JobStatusPending, id,
		models.JobStatusFailed, models.JobStatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	return r.explainNoTransition(ctx, res, id, models.JobStatusPending)
}

// ListEligibleJobs returns up to limit claimable jobs: pending or
// scheduled-and-due, with every declared dependency completed, ordered
// by priority weight then age. A dependency row that no longer exists
// keeps its dependents ineligible.
func (r *JobRepository) ListEligibleJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `
		SELECT` + jobColumns + `
		FROM jobs j
		WHERE j.status IN ($1, $2)
		  AND (j.scheduled_at IS NULL OR j.scheduled_at <= NOW())
		  AND NOT EXISTS (
			SELECT 1 FROM unnest(j.depends_on) AS dep_id
			LEFT JOIN jobs d ON d.id = dep_id
			WHERE d.id IS NULL OR d.status <> $3
		  )
		ORDER BY
			CASE j.priority
				WHEN 'critical' THEN 4
				WHEN 'high' THEN 3
				WHEN 'normal' THEN 2
				ELSE 1
			END DESC,
			j.created_at ASC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.JobStatusPending, models.JobStatusScheduled,
		models.JobStatusCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobs returns jobs filtered by status (all statuses when empty),
// newest first.
func (r *JobRepository) ListJobs(ctx context.Context, status string, limit, offset int) ([]*models.Job, error) {
	query := `
		SELECT` + jobColumns + `
		FROM jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListActiveJobs returns all running jobs.
func (r *JobRepository) ListActiveJobs(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, models.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FailStaleRunningJobs fails running jobs whose supervisor is gone: any
// row running longer than the given cutoff. Returns the failed job IDs.
func (r *JobRepository) FailStaleRunningJobs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, ended_at = NOW(), updated_at = NOW()
		WHERE status = $3 AND started_at < NOW() - ($4 * INTERVAL '1 second')
		RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.JobStatusFailed, "job supervisor lost, marked stale",
		models.JobStatusRunning, int(olderThan.Seconds()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale job ids: %w", err)
	}
	return ids, nil
}

// explainNoTransition turns a zero-row conditional update into either
// ErrNotFound or an InvalidTransitionError carrying the job's actual
// status.
func (r *JobRepository) explainNoTransition(ctx context.Context, result sql.Result, id uuid.UUID, requested string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read transition result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := r.GetJobStatus(ctx, id)
	if err != nil {
		return err
	}
	return &models.InvalidTransitionError{JobID: id, Current: current, Requested: requested}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var dependsOn pq.StringArray
	var tags pq.StringArray
	var result models.JobResult
	var hasResult bool

	var resultRaw sql.NullString
	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.Status,
		&job.Priority,
		&job.AttackMode,
		&job.NetworkID,
		&job.DictionaryID,
		&job.Config,
		&job.Progress,
		&job.StartedAt,
		&job.EndedAt,
		&job.ScheduledAt,
		&job.CancelledAt,
		&job.ErrorMessage,
		&resultRaw,
		&dependsOn,
		&tags,
		&job.UserID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resultRaw.Valid {
		if err := result.Scan([]byte(resultRaw.String)); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		hasResult = true
	}
	if hasResult {
		job.Result = &result
	}

	job.DependsOn = make([]uuid.UUID, 0, len(dependsOn))
	for _, raw := range dependsOn {
		dep, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dependency id %q: %w", raw, err)
		}
		job.DependsOn = append(job.DependsOn, dep)
	}
	job.Tags = []string(tags)

	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}
