package services

import (
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
	"github.com/google/uuid"
)

// ProgressObserver receives job progress events. A failing observer is
// logged and skipped, it never blocks delivery to the others.
type ProgressObserver interface {
	Notify(event models.ProgressEvent) error
}

// ProgressBroadcaster fans progress events out to registered observers
// with a per-job minimum interval. Terminal events bypass the rate
// limit so no consumer can miss a job finishing.
type ProgressBroadcaster struct {
	minInterval time.Duration

	mu        sync.Mutex
	observers map[int]ProgressObserver
	nextID    int
	lastSent  map[uuid.UUID]time.Time
}

// NewProgressBroadcaster creates a broadcaster that delivers at most one
// non-terminal event per job per minInterval.
func NewProgressBroadcaster(minInterval time.Duration) *ProgressBroadcaster {
	return &ProgressBroadcaster{
		minInterval: minInterval,
		observers:   make(map[int]ProgressObserver),
		lastSent:    make(map[uuid.UUID]time.Time),
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
func (b *ProgressBroadcaster) Subscribe(observer ProgressObserver) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = observer

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Publish delivers an event to all observers, subject to the per-job
// rate limit for non-terminal statuses.
func (b *ProgressBroadcaster) Publish(event models.ProgressEvent) {
	terminal := models.IsTerminalStatus(event.Status)

	b.mu.Lock()
	if !terminal {
		if last, ok := b.lastSent[event.JobID]; ok && time.Since(last) < b.minInterval {
			b.mu.Unlock()
			return
		}
		b.lastSent[event.JobID] = time.Now()
	} else {
		// The job is done, its rate-limit entry has nothing left to guard.
		delete(b.lastSent, event.JobID)
	}

	observers := make([]ProgressObserver, 0, len(b.observers))
	for _, observer := range b.observers {
		observers = append(observers, observer)
	}
	b.mu.Unlock()

	for _, observer := range observers {
		if err := observer.Notify(event); err != nil {
			debug.Warning("Progress observer failed for job %s: %v", event.JobID, err)
		}
	}
}

// ObserverCount reports the number of registered observers.
func (b *ProgressBroadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
