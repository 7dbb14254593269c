package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/joho/godotenv"
)

// Config carries all environment-driven settings for the server.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string
	// ListenAddr is the admin/websocket HTTP listen address.
	ListenAddr string

	// HashcatBinary is the path to the hashcat binary.
	HashcatBinary string
	// ExtractorBinary is the path to the hcxpcaptool binary used to pull
	// PMKID/handshake material out of raw captures.
	ExtractorBinary string

	// Data directories. Captures hold raw pcap files, artifacts hold
	// extracted PMKID/handshake files, dictionaries hold wordlists.
	CaptureDir    string
	ArtifactDir   string
	DictionaryDir string
	// WorkspaceRoot is the temp root under which per-job workspaces are
	// created as <WorkspaceRoot>/hashcat/<jobID>/.
	WorkspaceRoot string

	// MaxConcurrentJobs bounds the scheduler's worker pool.
	MaxConcurrentJobs int
	// WorkloadProfile is the default hashcat -w value (1-4).
	WorkloadProfile int
	// MaxRuntime is the hard wall-clock ceiling per run.
	MaxRuntime time.Duration

	// CancelPollInterval is how often a running executor checks the job
	// store for external cancellation.
	CancelPollInterval time.Duration
	// KillGracePeriod is how long a terminated process gets before the
	// forceful kill.
	KillGracePeriod time.Duration
	// ProgressInterval is how often progress events are derived and
	// broadcast while a job runs.
	ProgressInterval time.Duration
	// SchedulerInterval is the eligibility scan cadence.
	SchedulerInterval time.Duration

	// OutputBufferLimit bounds captured stdout/stderr per stream, in bytes.
	OutputBufferLimit int

	// CleanupSchedule is the cron spec for the workspace/stale-job sweep.
	CleanupSchedule string
	// StaleRunningSlack is added to MaxRuntime when deciding a running
	// job has been abandoned by a crashed server.
	StaleRunningSlack time.Duration
}

// Load reads configuration from the environment, consulting a .env file
// when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		debug.Debug("No .env file loaded: %v", err)
	}

	cfg := &Config{
		DatabaseURL:        getEnvString("DATABASE_URL", ""),
		ListenAddr:         getEnvString("LISTEN_ADDR", ":8080"),
		HashcatBinary:      getEnvString("HASHCAT_BINARY", "/usr/bin/hashcat"),
		ExtractorBinary:    getEnvString("EXTRACTOR_BINARY", "/usr/bin/hcxpcaptool"),
		CaptureDir:         getEnvString("CAPTURE_DIR", "/var/lib/krakenwifi/captures"),
		ArtifactDir:        getEnvString("ARTIFACT_DIR", "/var/lib/krakenwifi/artifacts"),
		DictionaryDir:      getEnvString("DICTIONARY_DIR", "/var/lib/krakenwifi/dictionaries"),
		WorkspaceRoot:      getEnvString("WORKSPACE_ROOT", os.TempDir()),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 2),
		WorkloadProfile:    getEnvInt("WORKLOAD_PROFILE", 2),
		MaxRuntime:         getEnvDuration("MAX_RUNTIME_SECONDS", 3600*time.Second),
		CancelPollInterval: getEnvDuration("CANCEL_POLL_SECONDS", 2*time.Second),
		KillGracePeriod:    getEnvDuration("KILL_GRACE_SECONDS", 5*time.Second),
		ProgressInterval:   getEnvDuration("PROGRESS_INTERVAL_SECONDS", 5*time.Second),
		SchedulerInterval:  getEnvDuration("SCHEDULER_INTERVAL_SECONDS", 2*time.Second),
		OutputBufferLimit:  getEnvInt("OUTPUT_BUFFER_LIMIT", 1<<20),
		CleanupSchedule:    getEnvString("CLEANUP_SCHEDULE", "@every 10m"),
		StaleRunningSlack:  getEnvDuration("STALE_RUNNING_SLACK_SECONDS", 10*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.WorkloadProfile < 1 || cfg.WorkloadProfile > 4 {
		debug.Warning("WORKLOAD_PROFILE %d outside 1-4, using 2", cfg.WorkloadProfile)
		cfg.WorkloadProfile = 2
	}
	if !filepath.IsAbs(cfg.WorkspaceRoot) {
		return nil, fmt.Errorf("WORKSPACE_ROOT must be absolute, got %q", cfg.WorkspaceRoot)
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		debug.Warning("Invalid integer for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		debug.Warning("Invalid duration for %s: %q, using default %v", key, val, defaultValue)
	}
	return defaultValue
}
