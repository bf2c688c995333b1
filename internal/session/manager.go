package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns the live sessions, keyed by user ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Get returns the user's session, if one is open.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Open is called on login. It returns the user's session, creating a fresh
// one when needed; a role change replaces the session.
func (m *Manager) Open(userID string, role Role) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok && s.Role == role {
		s.refresh()
		return s
	}
	s := New(userID, role)
	m.sessions[userID] = s
	m.logger.Debug("Session opened", zap.String("user_id", userID), zap.String("role", string(role)))
	return s
}

// Resume returns the user's live session for an authenticated request. It
// never replaces an existing session; one is opened only when none is live,
// e.g. after an idle sweep.
func (m *Manager) Resume(userID string, role Role) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.refresh()
		return s
	}
	s := New(userID, role)
	m.sessions[userID] = s
	m.logger.Debug("Session resumed", zap.String("user_id", userID), zap.String("role", string(role)))
	return s
}

// End discards the user's session. Sends still in flight settle into the
// discarded value and are never observed again.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; ok {
		delete(m.sessions, userID)
		m.logger.Debug("Session ended", zap.String("user_id", userID))
	}
}

// Sweep ends sessions idle for longer than maxIdle that have no send in flight.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) && !s.Busy() {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Swept idle sessions", zap.Int("removed", removed), zap.Int("remaining", len(m.sessions)))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(maxIdle)
		}
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
