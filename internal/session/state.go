package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Flash is a one-shot notification shown on the next rendered page.
type Flash struct {
	Level   Level
	Title   string
	Message string
}

const maxRememberedNavigations = 32

type state struct {
	flashes     []Flash
	inFlight    map[string]struct{}
	navigations []string
	lastSeen    time.Time
}

// Key derives the state key for a session token so raw tokens never end up in
// logs or cache keys.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StateManager keeps per-session UI state: pending flashes, plans with a
// top-up in flight and the navigations already processed.
type StateManager struct {
	mu       sync.Mutex
	sessions map[string]*state
	now      func() time.Time
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[string]*state),
		now:      time.Now,
	}
}

func (m *StateManager) get(key string) *state {
	s, ok := m.sessions[key]
	if !ok {
		s = &state{inFlight: make(map[string]struct{})}
		m.sessions[key] = s
	}
	s.lastSeen = m.now()
	return s
}

func (m *StateManager) Push(key string, flash Flash) {
	m.mu.Lock()
	s := m.get(key)
	s.flashes = append(s.flashes, flash)
	m.mu.Unlock()
}

// Drain returns and clears the pending flashes.
func (m *StateManager) Drain(key string) []Flash {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	flashes := s.flashes
	s.flashes = nil
	return flashes
}

// Begin marks item as in flight. It reports false if it already was.
func (m *StateManager) Begin(key, item string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(key)
	if _, busy := s.inFlight[item]; busy {
		return false
	}
	s.inFlight[item] = struct{}{}
	return true
}

func (m *StateManager) End(key, item string) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		delete(s.inFlight, item)
	}
	m.mu.Unlock()
}

func (m *StateManager) InFlight(key, item string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return false
	}
	_, busy := s.inFlight[item]
	return busy
}

// MarkNavigation records navigationID and reports whether it is new for the session.
func (m *StateManager) MarkNavigation(key, navigationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(key)
	for _, seen := range s.navigations {
		if seen == navigationID {
			return false
		}
	}
	s.navigations = append(s.navigations, navigationID)
	if len(s.navigations) > maxRememberedNavigations {
		s.navigations = s.navigations[len(s.navigations)-maxRememberedNavigations:]
	}
	return true
}

func (m *StateManager) Reset(key string) {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
}

// Sweep drops sessions idle for longer than maxIdle and returns how many were removed.
func (m *StateManager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for key, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed
}
