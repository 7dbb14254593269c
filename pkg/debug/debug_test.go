package debug

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveAndRestoreState is a helper to save and restore debug state for testing
func saveAndRestoreState(t *testing.T) func() {
	t.Helper()

	mu.Lock()
	originalEnabled := isEnabled
	originalLevel := currentLevel
	mu.Unlock()

	return func() {
		mu.Lock()
		isEnabled = originalEnabled
		currentLevel = originalLevel
		mu.Unlock()
		_ = DisableFileLogging()
		ClearLogBuffer()
	}
}

func TestLogLevelConstants(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelDebug)
	assert.Equal(t, LogLevel(1), LevelInfo)
	assert.Equal(t, LogLevel(2), LevelWarning)
	assert.Equal(t, LogLevel(3), LevelError)

	assert.Equal(t, "DEBUG", levelNames[LevelDebug])
	assert.Equal(t, "INFO", levelNames[LevelInfo])
	assert.Equal(t, "WARNING", levelNames[LevelWarning])
	assert.Equal(t, "ERROR", levelNames[LevelError])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		wantLevel LogLevel
		wantOK    bool
	}{
		{"DEBUG", LevelDebug, true},
		{"debug", LevelDebug, true},
		{"Info", LevelInfo, true},
		{"WARNING", LevelWarning, true},
		{"ERROR", LevelError, true},
		{"TRACE", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevel(tt.input)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.input)
		if tt.wantOK {
			assert.Equal(t, tt.wantLevel, level, "input %q", tt.input)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(true)
	SetLevel(LevelWarning)
	ClearLogBuffer()

	Debug("dropped debug message")
	Info("dropped info message")
	Warning("kept warning message")
	Error("kept error message")

	entries := GetAllBufferedLogs()
	require.Len(t, entries, 2)
	assert.Equal(t, "WARNING", entries[0].Level)
	assert.Equal(t, "ERROR", entries[1].Level)
}

func TestDisabledSuppressesOutput(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(false)
	ClearLogBuffer()

	Error("should not be recorded")
	assert.Empty(t, GetAllBufferedLogs())
}

func TestGetBufferedLogsSince(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(true)
	SetLevel(LevelDebug)
	ClearLogBuffer()

	Info("older entry")
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	Info("newer entry")

	entries := GetBufferedLogs(cutoff)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "newer entry")
}

func TestFileLogging(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(true)
	SetLevel(LevelDebug)

	dir := t.TempDir()
	require.NoError(t, EnableFileLogging(dir))
	assert.Equal(t, filepath.Join(dir, LogFileName), GetLogFilePath())

	Info("written to file")
	require.NoError(t, DisableFileLogging())
	assert.Empty(t, GetLogFilePath())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestStructuredLogFields(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(true)
	SetLevel(LevelDebug)
	ClearLogBuffer()

	Log("claim attempt", map[string]interface{}{
		"job_id": "abc",
		"status": "pending",
	})

	entries := GetAllBufferedLogs()
	require.Len(t, entries, 1)
	// Fields are rendered sorted by key
	assert.Contains(t, entries[0].Message, "claim attempt | job_id=abc status=pending")
}
