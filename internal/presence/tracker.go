package presence

import (
	"sync"
	"time"
)

// Tracker records when a participant's connection was lost, keyed by
// (session, participant). It is process-local and not persisted: a restart
// resets every inactivity clock, which is an accepted limitation.
type Tracker struct {
	mu             sync.RWMutex
	disconnections map[string]map[string]time.Time
}

// Entry is one tracked disconnection.
type Entry struct {
	SessionID      string
	ParticipantID  string
	DisconnectedAt time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		disconnections: make(map[string]map[string]time.Time),
	}
}

// Track records a disconnection time, overwriting any earlier one.
func (t *Tracker) Track(sessionID, participantID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disconnections[sessionID] == nil {
		t.disconnections[sessionID] = make(map[string]time.Time)
	}
	t.disconnections[sessionID][participantID] = at
}

// Clear drops tracking for one participant, typically after a reconnection
// or an eviction. Clearing an untracked pair is a no-op.
func (t *Tracker) Clear(sessionID, participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if participants, exists := t.disconnections[sessionID]; exists {
		delete(participants, participantID)
		if len(participants) == 0 {
			delete(t.disconnections, sessionID)
		}
	}
}

// ClearSession drops every tracking entry for a session.
func (t *Tracker) ClearSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.disconnections, sessionID)
}

// Expired returns a snapshot of entries whose disconnection age meets or
// exceeds the threshold at the given instant.
func (t *Tracker) Expired(now time.Time, threshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var expired []Entry
	for sessionID, participants := range t.disconnections {
		for participantID, disconnectedAt := range participants {
			if now.Sub(disconnectedAt) >= threshold {
				expired = append(expired, Entry{
					SessionID:      sessionID,
					ParticipantID:  participantID,
					DisconnectedAt: disconnectedAt,
				})
			}
		}
	}
	return expired
}

// Len reports the number of tracked disconnections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, participants := range t.disconnections {
		n += len(participants)
	}
	return n
}
