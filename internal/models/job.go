package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job status values. Transitions between them are enforced by the
// repository's conditional updates, not by callers.
const (
	JobStatusPending   = "pending"   // Created by the submission surface, waiting for dispatch
	JobStatusScheduled = "scheduled" // Accepted by the scheduler for a future scheduled_at
	JobStatusRunning   = "running"   // Claimed, a hashcat process is (or is about to be) alive
	JobStatusCompleted = "completed" // Process finished, results parsed (possibly zero cracks)
	JobStatusFailed    = "failed"    // Run could not complete; error_message is set
	JobStatusCancelled = "cancelled" // Cancelled by request; not an error
)

// Job priority values, ordered low to critical.
const (
	JobPriorityLow      = "low"
	JobPriorityNormal   = "normal"
	JobPriorityHigh     = "high"
	JobPriorityCritical = "critical"
)

// PriorityWeight maps a priority value to its ordering weight.
// Unknown values sort with normal.
func PriorityWeight(priority string) int {
	switch priority {
	case JobPriorityCritical:
		return 4
	case JobPriorityHigh:
		return 3
	case JobPriorityLow:
		return 1
	default:
		return 2
	}
}

// Attack modes. Each maps to a fixed hashcat hash mode and hash-type label.
const (
	AttackModePMKID     = "pmkid"
	AttackModeHandshake = "handshake"
)

// IsTerminalStatus returns true for statuses no transition leaves.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// Job represents a crack job row in the jobs table.
type Job struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	AttackMode   string         `json:"attack_mode"`
	NetworkID    uuid.UUID      `json:"network_id"`
	DictionaryID uuid.UUID      `json:"dictionary_id"`
	Config       JobConfig      `json:"config"`
	Progress     int            `json:"progress"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"`
	CancelledAt  *time.Time     `json:"cancelled_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Result       *JobResult     `json:"result,omitempty"`
	DependsOn    []uuid.UUID    `json:"depends_on"`
	Tags         []string       `json:"tags"`
	UserID       uuid.UUID      `json:"user_id"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// JobConfig is the per-mode attack configuration stored in the config
// jsonb column. At most one of the mode sections is meaningful for a
// given job; Extra carries forward-compatible parameters this core does
// not interpret. All of it is validated at the command-builder boundary,
// never trusted as stored.
type JobConfig struct {
	PMKID     *PMKIDConfig           `json:"pmkid,omitempty"`
	Handshake *HandshakeConfig       `json:"handshake,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// PMKIDConfig holds pmkid-mode parameters.
type PMKIDConfig struct {
	HashMode    *int     `json:"hash_mode,omitempty"`
	Workload    *int     `json:"workload,omitempty"`
	CustomFlags []string `json:"custom_flags,omitempty"`
}

// HandshakeConfig holds handshake-mode parameters.
type HandshakeConfig struct {
	HashMode    *int     `json:"hash_mode,omitempty"`
	Workload    *int     `json:"workload,omitempty"`
	CustomFlags []string `json:"custom_flags,omitempty"`
	BSSID       string   `json:"bssid,omitempty"`
}

// ModeSection returns the section matching the job's attack mode, or nil.
func (c JobConfig) ModeSection(attackMode string) (hashMode *int, workload *int, customFlags []string) {
	switch attackMode {
	case AttackModePMKID:
		if c.PMKID != nil {
			return c.PMKID.HashMode, c.PMKID.Workload, c.PMKID.CustomFlags
		}
	case AttackModeHandshake:
		if c.Handshake != nil {
			return c.Handshake.HashMode, c.Handshake.Workload, c.Handshake.CustomFlags
		}
	}
	return nil, nil, nil
}

// Value implements driver.Valuer so JobConfig can be stored in a jsonb column.
func (c JobConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for jsonb columns.
func (c *JobConfig) Scan(value interface{}) error {
	if value == nil {
		*c = JobConfig{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type %T for JobConfig", value)
	}
	return json.Unmarshal(data, c)
}

// JobResult is the structured outcome of a completed run, stored in the
// result jsonb column.
type JobResult struct {
	PasswordsFound   int           `json:"passwords_found"`
	Cracks           []CrackResult `json:"cracks,omitempty"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	ExitCode         int           `json:"exit_code"`
}

// Value implements driver.Valuer for the result jsonb column.
func (r JobResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for the result jsonb column.
func (r *JobResult) Scan(value interface{}) error {
	if value == nil {
		*r = JobResult{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type %T for JobResult", value)
	}
	return json.Unmarshal(data, r)
}

// CrackResult is one recovered credential parsed from the hashcat output
// file.
type CrackResult struct {
	Hash     string `json:"hash"`
	Password string `json:"password"`
	HashType string `json:"hash_type"`
}

// ProgressEvent is the fire-and-forget message published to progress
// observers. It is never persisted beyond the job row it summarizes.
type ProgressEvent struct {
	JobID     uuid.UUID              `json:"job_id"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// InvalidTransitionError reports a rejected state transition, naming the
// current and requested states.
type InvalidTransitionError struct {
	JobID     uuid.UUID
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.Current, e.Requested)
}
