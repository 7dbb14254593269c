package attack

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/attack/pathcheck"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
)

const (
	// ToolName is the only binary the command builder will produce an
	// argument vector for.
	ToolName = "hashcat"

	// Fixed hashcat hash modes, one per attack mode.
	HashModePMKID     = 16800
	HashModeHandshake = 2500

	// Hash-type labels attached to parsed crack results.
	HashTypeLabelPMKID     = "WPA-PMKID-PBKDF2"
	HashTypeLabelHandshake = "WPA-EAPOL-PBKDF2"

	// Per-job workspace file names.
	OutputFileName = "hashcat_output.txt"
	PotfileName    = "hashcat.pot"

	// StatusTimerSeconds is the hashcat-side status refresh interval.
	StatusTimerSeconds = 5

	minWorkload = 1
	maxWorkload = 4
)

// AttackSpec is the validated, transient description of one hashcat run.
// It is owned by a single executor invocation and discarded afterwards.
type AttackSpec struct {
	JobID          uuid.UUID
	AttackMode     string
	HashMode       int
	ArtifactPath   string
	DictionaryPath string
	SessionID      string
	WorkspaceDir   string
	OutputFile     string
	PotfilePath    string
	Workload       int
	MaxRuntime     time.Duration
	CustomFlags    []string
}

// HashModeFor returns the fixed hashcat hash mode for an attack mode.
func HashModeFor(attackMode string) (int, error) {
	switch attackMode {
	case models.AttackModePMKID:
		return HashModePMKID, nil
	case models.AttackModeHandshake:
		return HashModeHandshake, nil
	default:
		return 0, fmt.Errorf("unknown attack mode: %s", attackMode)
	}
}

// HashTypeLabel returns the hash-type label for an attack mode.
func HashTypeLabel(attackMode string) string {
	if attackMode == models.AttackModePMKID {
		return HashTypeLabelPMKID
	}
	return HashTypeLabelHandshake
}

// NewAttackSpec builds the workspace layout and run parameters for a job
// from already-validated artifact and dictionary paths. The job's config
// union is validated here, at the boundary, rather than trusted as
// stored.
func NewAttackSpec(job *models.Job, artifactPath, dictionaryPath, workspaceRoot string, defaultWorkload int, maxRuntime time.Duration) (*AttackSpec, error) {
	hashMode, err := HashModeFor(job.AttackMode)
	if err != nil {
		return nil, &ValidationError{Field: "attack_mode", Err: err}
	}

	workspaceDir, err := pathcheck.SafeJoin(workspaceRoot, ToolName, job.ID.String())
	if err != nil {
		return nil, &ValidationError{Field: "workspace", Err: err}
	}
	outputFile, err := pathcheck.SafeJoin(workspaceDir, OutputFileName)
	if err != nil {
		return nil, &ValidationError{Field: "output_file", Err: err}
	}
	potfilePath, err := pathcheck.SafeJoin(workspaceDir, PotfileName)
	if err != nil {
		return nil, &ValidationError{Field: "potfile", Err: err}
	}

	workload := defaultWorkload
	configHashMode, configWorkload, customFlags := job.Config.ModeSection(job.AttackMode)

	// A stored hash-mode override may only restate the mode's fixed value.
	if configHashMode != nil && *configHashMode != hashMode {
		return nil, &ValidationError{
			Field: "config.hash_mode",
			Err:   fmt.Errorf("hash mode %d does not match attack mode %s", *configHashMode, job.AttackMode),
		}
	}
	if configWorkload != nil {
		if *configWorkload < minWorkload || *configWorkload > maxWorkload {
			return nil, &ValidationError{
				Field: "config.workload",
				Err:   fmt.Errorf("workload %d outside range %d-%d", *configWorkload, minWorkload, maxWorkload),
			}
		}
		workload = *configWorkload
	}
	if workload < minWorkload || workload > maxWorkload {
		workload = 2
	}

	for _, flag := range customFlags {
		if err := validateCustomFlag(flag); err != nil {
			return nil, &ValidationError{Field: "config.custom_flags", Err: err}
		}
	}

	return &AttackSpec{
		JobID:          job.ID,
		AttackMode:     job.AttackMode,
		HashMode:       hashMode,
		ArtifactPath:   artifactPath,
		DictionaryPath: dictionaryPath,
		SessionID:      job.ID.String(),
		WorkspaceDir:   workspaceDir,
		OutputFile:     outputFile,
		PotfilePath:    potfilePath,
		Workload:       workload,
		MaxRuntime:     maxRuntime,
		CustomFlags:    customFlags,
	}, nil
}

// validateCustomFlag applies the same metacharacter denylist the path
// validator uses. Flags are passed through the argument vector, so this
// is defense in depth, not a quoting requirement.
func validateCustomFlag(flag string) error {
	if flag == "" {
		return fmt.Errorf("empty custom flag")
	}
	if !strings.HasPrefix(flag, "-") {
		return fmt.Errorf("custom flag %q must start with -", flag)
	}
	if strings.ContainsAny(flag, "<>\"'|*?;&$(){}[]`\\") || strings.ContainsRune(flag, 0) {
		return fmt.Errorf("custom flag %q contains forbidden characters", flag)
	}
	return nil
}

// BuildCommand constructs the full argument vector for a run. The vector
// is never collapsed into a shell string; QuoteForDisplay exists for
// logging only. The binary is required to actually be hashcat so an
// argv-construction bug cannot silently invoke something else.
func BuildCommand(binaryPath string, spec *AttackSpec) ([]string, error) {
	base := filepath.Base(binaryPath)
	if name := strings.TrimSuffix(base, filepath.Ext(base)); name != ToolName {
		return nil, &ValidationError{
			Field: "binary",
			Err:   fmt.Errorf("unexpected binary %q, want %s", base, ToolName),
		}
	}

	runtimeSeconds := int(spec.MaxRuntime / time.Second)
	if runtimeSeconds < 1 {
		runtimeSeconds = 1
	}

	args := []string{
		binaryPath,
		"-m", strconv.Itoa(spec.HashMode),
		"-a", "0", // dictionary attack
		"--session", spec.SessionID,
		"--potfile-path", spec.PotfilePath,
		"--outfile", spec.OutputFile,
		"--outfile-format", "3", // hash:plain
		"-w", strconv.Itoa(spec.Workload),
		"--runtime", strconv.Itoa(runtimeSeconds),
		"--status",
		"--status-timer", strconv.Itoa(StatusTimerSeconds),
		"--quiet",
	}
	args = append(args, spec.CustomFlags...)
	args = append(args, spec.ArtifactPath, spec.DictionaryPath)

	return args, nil
}

// QuoteForDisplay renders an argument vector for logs and audit trails.
// It is never a security boundary: execution always receives the vector.
func QuoteForDisplay(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t'\"") {
			quoted[i] = strconv.Quote(arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
