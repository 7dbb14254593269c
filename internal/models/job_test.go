package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityWeight(t *testing.T) {
	assert.Equal(t, 4, PriorityWeight(JobPriorityCritical))
	assert.Equal(t, 3, PriorityWeight(JobPriorityHigh))
	assert.Equal(t, 2, PriorityWeight(JobPriorityNormal))
	assert.Equal(t, 1, PriorityWeight(JobPriorityLow))
	assert.Equal(t, 2, PriorityWeight("unknown"), "unknown priorities rank as normal")
}

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range []string{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, IsTerminalStatus(status), status)
	}
	for _, status := range []string{JobStatusPending, JobStatusScheduled, JobStatusRunning} {
		assert.False(t, IsTerminalStatus(status), status)
	}
}

func TestJobConfigModeSection(t *testing.T) {
	workload := 3
	config := JobConfig{
		PMKID: &PMKIDConfig{Workload: &workload, CustomFlags: []string{"--force"}},
	}

	_, w, flags := config.ModeSection(AttackModePMKID)
	require.NotNil(t, w)
	assert.Equal(t, 3, *w)
	assert.Equal(t, []string{"--force"}, flags)

	hm, w, flags := config.ModeSection(AttackModeHandshake)
	assert.Nil(t, hm)
	assert.Nil(t, w)
	assert.Nil(t, flags)
}

func TestJobConfigRoundTrip(t *testing.T) {
	hashMode := 16800
	config := JobConfig{
		PMKID: &PMKIDConfig{HashMode: &hashMode},
		Extra: map[string]interface{}{"source": "wardrive-2026-08"},
	}

	value, err := config.Value()
	require.NoError(t, err)

	var decoded JobConfig
	require.NoError(t, decoded.Scan(value))
	require.NotNil(t, decoded.PMKID)
	assert.Equal(t, 16800, *decoded.PMKID.HashMode)
	assert.Equal(t, "wardrive-2026-08", decoded.Extra["source"])
}

func TestJobResultScanFromJSON(t *testing.T) {
	raw := []byte(`{"passwords_found":1,"cracks":[{"hash":"deadbeef","password":"hunter2","hash_type":"WPA-PMKID-PBKDF2"}],"processing_time_ms":4200,"exit_code":0}`)

	var result JobResult
	require.NoError(t, result.Scan(raw))
	assert.Equal(t, 1, result.PasswordsFound)
	require.Len(t, result.Cracks, 1)
	assert.Equal(t, "hunter2", result.Cracks[0].Password)
	assert.Equal(t, int64(4200), result.ProcessingTimeMS)
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{Current: JobStatusCompleted, Requested: JobStatusCancelled}
	assert.Contains(t, err.Error(), "completed")
	assert.Contains(t, err.Error(), "cancelled")
}

func TestJobSerializesResultOmitted(t *testing.T) {
	job := Job{Status: JobStatusPending}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"result"`)
}

func TestJobSerializesErrorMessageAsPlainString(t *testing.T) {
	job := Job{Status: JobStatusPending}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error_message"`)

	msg := "runtime ceiling exceeded"
	job.ErrorMessage = &msg
	data, err = json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error_message":"runtime ceiling exceeded"`)
}
