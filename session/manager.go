package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// InactivityTimeout is how long a session can be inactive before cleanup.
	InactivityTimeout = 24 * time.Hour

	// CleanupInterval is how often the cleanup pass runs.
	CleanupInterval = 1 * time.Hour

	// MaxSessions is the number of sessions kept before LRU eviction.
	MaxSessions = 1000
)

// Manager is a thread-safe registry of sessions keyed by session ID. A
// background goroutine removes sessions inactive for longer than
// InactivityTimeout; when the count exceeds MaxSessions the least recently
// used session is evicted.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
}

// NewManager creates a manager and starts its cleanup goroutine.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		sessions:      make(map[string]*Session),
		cancelCleanup: cancel,
		cleanupDone:   make(chan struct{}),
	}
	go m.cleanupLoop(ctx)
	return m
}

// GetSession returns the session for the given ID, creating it on first use,
// and refreshes its last-activity time.
func (m *Manager) GetSession(sessionID string) *Session {
	now := time.Now()

	// Fast path for existing sessions.
	m.mu.RLock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.RUnlock()
		m.mu.Lock()
		s.lastActivity = now
		m.mu.Unlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check: another goroutine may have created the session while we
	// waited for the write lock.
	if s, ok := m.sessions[sessionID]; ok {
		s.lastActivity = now
		return s
	}

	if len(m.sessions) >= MaxSessions {
		m.evictLRU()
	}

	s := NewSession()
	s.lastActivity = now
	m.sessions[sessionID] = s
	logrus.WithField("session_id", sessionID).Debug("Session created")
	return s
}

// Get returns the session for the given ID without creating one, or nil.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// Delete removes the session with the given ID. No-op if absent.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the cleanup goroutine and waits for it to finish.
func (m *Manager) Shutdown() {
	if m.cancelCleanup != nil {
		m.cancelCleanup()
		<-m.cleanupDone
	}
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupInactive()
		}
	}
}

func (m *Manager) cleanupInactive() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastActivity) > InactivityTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(m.sessions),
		}).Info("Cleaned up inactive sessions")
	}
}

// evictLRU removes the least recently used session. Must be called with
// m.mu held for writing.
func (m *Manager) evictLRU() {
	var oldestID string
	var oldestTime time.Time

	for id, s := range m.sessions {
		if oldestID == "" || s.lastActivity.Before(oldestTime) {
			oldestID = id
			oldestTime = s.lastActivity
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
		logrus.WithField("session_id", oldestID).Info("Evicted LRU session")
	}
}
