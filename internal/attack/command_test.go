package attack

import (
	"testing"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(attackMode string) *models.Job {
	return &models.Job{
		ID:         uuid.New(),
		NetworkID:  uuid.New(),
		AttackMode: attackMode,
		Status:     models.JobStatusRunning,
	}
}

func TestHashModeFor(t *testing.T) {
	mode, err := HashModeFor(models.AttackModePMKID)
	require.NoError(t, err)
	assert.Equal(t, 16800, mode)

	mode, err = HashModeFor(models.AttackModeHandshake)
	require.NoError(t, err)
	assert.Equal(t, 2500, mode)

	_, err = HashModeFor("wep")
	assert.Error(t, err)
}

func TestNewAttackSpecWorkspaceLayout(t *testing.T) {
	job := testJob(models.AttackModePMKID)
	spec, err := NewAttackSpec(job, "/data/artifacts/a.16800", "/data/dicts/rockyou.txt", "/tmp/work", 2, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/work/hashcat/"+job.ID.String(), spec.WorkspaceDir)
	assert.Equal(t, spec.WorkspaceDir+"/"+OutputFileName, spec.OutputFile)
	assert.Equal(t, spec.WorkspaceDir+"/"+PotfileName, spec.PotfilePath)
	assert.Equal(t, job.ID.String(), spec.SessionID)
	assert.Equal(t, HashModePMKID, spec.HashMode)
	assert.Equal(t, 2, spec.Workload)
}

func TestNewAttackSpecHashModeOverride(t *testing.T) {
	fixed := HashModeHandshake
	wrong := 22000

	job := testJob(models.AttackModeHandshake)
	job.Config.Handshake = &models.HandshakeConfig{HashMode: &fixed}
	_, err := NewAttackSpec(job, "/a/f.hccapx", "/d/w.txt", "/tmp/work", 2, time.Hour)
	assert.NoError(t, err, "restating the fixed hash mode is allowed")

	job.Config.Handshake = &models.HandshakeConfig{HashMode: &wrong}
	_, err = NewAttackSpec(job, "/a/f.hccapx", "/d/w.txt", "/tmp/work", 2, time.Hour)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "config.hash_mode", verr.Field)
}

func TestNewAttackSpecWorkloadValidation(t *testing.T) {
	three := 3
	nine := 9

	job := testJob(models.AttackModePMKID)
	job.Config.PMKID = &models.PMKIDConfig{Workload: &three}
	spec, err := NewAttackSpec(job, "/a/f.16800", "/d/w.txt", "/tmp/work", 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Workload)

	job.Config.PMKID = &models.PMKIDConfig{Workload: &nine}
	_, err = NewAttackSpec(job, "/a/f.16800", "/d/w.txt", "/tmp/work", 2, time.Hour)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "config.workload", verr.Field)
}

func TestNewAttackSpecCustomFlagRejection(t *testing.T) {
	tests := []struct {
		name string
		flag string
	}{
		{"no dash prefix", "status-json"},
		{"shell metacharacters", "--outfile=$(whoami)"},
		{"semicolon", "--force;rm"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob(models.AttackModePMKID)
			job.Config.PMKID = &models.PMKIDConfig{CustomFlags: []string{tt.flag}}
			_, err := NewAttackSpec(job, "/a/f.16800", "/d/w.txt", "/tmp/work", 2, time.Hour)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "config.custom_flags", verr.Field)
		})
	}
}

func TestBuildCommandArgumentVector(t *testing.T) {
	job := testJob(models.AttackModeHandshake)
	job.Config.Handshake = &models.HandshakeConfig{CustomFlags: []string{"--force"}}
	spec, err := NewAttackSpec(job, "/data/artifacts/n.hccapx", "/data/dicts/rockyou.txt", "/tmp/work", 2, 30*time.Minute)
	require.NoError(t, err)

	argv, err := BuildCommand("/usr/bin/hashcat", spec)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/hashcat", argv[0])
	assert.Equal(t, []string{
		"/usr/bin/hashcat",
		"-m", "2500",
		"-a", "0",
		"--session", job.ID.String(),
		"--potfile-path", spec.PotfilePath,
		"--outfile", spec.OutputFile,
		"--outfile-format", "3",
		"-w", "2",
		"--runtime", "1800",
		"--status",
		"--status-timer", "5",
		"--quiet",
		"--force",
		"/data/artifacts/n.hccapx",
		"/data/dicts/rockyou.txt",
	}, argv)
}

func TestBuildCommandRejectsWrongBinary(t *testing.T) {
	job := testJob(models.AttackModePMKID)
	spec, err := NewAttackSpec(job, "/a/f.16800", "/d/w.txt", "/tmp/work", 2, time.Hour)
	require.NoError(t, err)

	for _, binary := range []string{"/usr/bin/john", "/bin/sh", "/opt/hashcat-wrapper"} {
		_, err := BuildCommand(binary, spec)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "binary %s", binary)
		assert.Equal(t, "binary", verr.Field)
	}

	// An extension on the expected name is fine.
	_, err = BuildCommand("/opt/hashcat/hashcat.bin", spec)
	assert.NoError(t, err)
}

func TestQuoteForDisplay(t *testing.T) {
	out := QuoteForDisplay([]string{"hashcat", "-m", "16800", "/tmp/my dir/file", ""})
	assert.Equal(t, `hashcat -m 16800 "/tmp/my dir/file" ""`, out)
}
