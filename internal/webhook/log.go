package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apc939/asistentehc/pkg/model"
)

// maxLogEntries bounds the delivery log; the oldest entry is evicted first.
const maxLogEntries = 10

// DeliveryLog is a bounded, in-memory record of delivery attempts. It is
// deliberately volatile: entries never touch the configuration store, so no
// transcript fragment or patient reference outlives the process.
type DeliveryLog struct {
	mu      sync.Mutex
	entries []model.DeliveryLogEntry
}

// NewDeliveryLog creates an empty DeliveryLog.
func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{}
}

// Record appends one delivery attempt, evicting the oldest entry when full.
func (l *DeliveryLog) Record(status model.DeliveryStatus, durationSeconds float64, message string) model.DeliveryLogEntry {
	entry := model.DeliveryLogEntry{
		ID:              uuid.New().String(),
		Timestamp:       time.Now(),
		DurationSeconds: durationSeconds,
		Status:          status,
		Message:         message,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[len(l.entries)-maxLogEntries:]
	}
	return entry
}

// Entries returns the log, newest first.
func (l *DeliveryLog) Entries() []model.DeliveryLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.DeliveryLogEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Clear discards all entries.
func (l *DeliveryLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
