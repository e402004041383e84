package server

import (
	"context"
	"sync"
)

// SessionStatus is a session lifecycle state.
type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusReady        SessionStatus = "ready"
	StatusExecuting    SessionStatus = "executing"
	StatusError        SessionStatus = "error"
	StatusDisconnected SessionStatus = "disconnected"
)

// Session binds one transport connection to a tenant. Sessions own no
// sandbox; sandboxes are keyed by tenant and outlive the connection, so a
// reconnecting tenant resumes the same sandbox.
type Session struct {
	ID     string
	Tenant string

	cancel context.CancelFunc

	mu     sync.Mutex
	status SessionStatus
}

// Status returns the session's current state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st SessionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// SessionManager tracks live sessions by connection id.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Get returns a live session if it exists.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sess, ok := sm.sessions[id]
	return sess, ok
}

// Add registers a session.
func (sm *SessionManager) Add(sess *Session) {
	sm.mu.Lock()
	sm.sessions[sess.ID] = sess
	sm.mu.Unlock()
}

// Remove drops a session and cancels its in-flight work.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[id]; ok {
		if sess.cancel != nil {
			sess.cancel()
		}
		delete(sm.sessions, id)
	}
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CloseAll cancels every live session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, sess := range sm.sessions {
		if sess.cancel != nil {
			sess.cancel()
		}
		delete(sm.sessions, id)
	}
}
