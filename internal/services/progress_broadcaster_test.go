package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []models.ProgressEvent
	err    error
}

func (o *recordingObserver) Notify(event models.ProgressEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *recordingObserver) received() []models.ProgressEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.ProgressEvent(nil), o.events...)
}

func runningEvent(jobID uuid.UUID, progress int) models.ProgressEvent {
	return models.ProgressEvent{
		JobID:     jobID,
		Status:    models.JobStatusRunning,
		Progress:  progress,
		Timestamp: time.Now(),
	}
}

func TestBroadcasterRateLimitsPerJob(t *testing.T) {
	b := NewProgressBroadcaster(time.Hour)
	observer := &recordingObserver{}
	b.Subscribe(observer)

	jobA := uuid.New()
	jobB := uuid.New()

	b.Publish(runningEvent(jobA, 10))
	b.Publish(runningEvent(jobA, 20))
	b.Publish(runningEvent(jobB, 5))

	events := observer.received()
	require.Len(t, events, 2, "second rapid event for the same job is dropped")
	assert.Equal(t, jobA, events[0].JobID)
	assert.Equal(t, 10, events[0].Progress)
	assert.Equal(t, jobB, events[1].JobID)
}

func TestBroadcasterTerminalBypassesRateLimit(t *testing.T) {
	b := NewProgressBroadcaster(time.Hour)
	observer := &recordingObserver{}
	b.Subscribe(observer)

	jobID := uuid.New()
	b.Publish(runningEvent(jobID, 50))
	b.Publish(models.ProgressEvent{JobID: jobID, Status: models.JobStatusCompleted, Progress: 100, Timestamp: time.Now()})
	b.Publish(models.ProgressEvent{JobID: jobID, Status: models.JobStatusFailed, Timestamp: time.Now()})

	events := observer.received()
	require.Len(t, events, 3, "terminal events are always delivered")
	assert.Equal(t, models.JobStatusCompleted, events[1].Status)
	assert.Equal(t, models.JobStatusFailed, events[2].Status)
}

func TestBroadcasterFailingObserverDoesNotBlockOthers(t *testing.T) {
	b := NewProgressBroadcaster(0)
	failing := &recordingObserver{err: errors.New("websocket gone")}
	healthy := &recordingObserver{}
	b.Subscribe(failing)
	b.Subscribe(healthy)

	b.Publish(runningEvent(uuid.New(), 30))

	assert.Len(t, healthy.received(), 1)
	assert.Len(t, failing.received(), 1)
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewProgressBroadcaster(0)
	observer := &recordingObserver{}
	unsubscribe := b.Subscribe(observer)
	require.Equal(t, 1, b.ObserverCount())

	unsubscribe()
	assert.Equal(t, 0, b.ObserverCount())

	b.Publish(runningEvent(uuid.New(), 10))
	assert.Empty(t, observer.received())
}
