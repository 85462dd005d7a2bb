package concierge

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for an unknown or expired session ID.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Session is one page's board.
type Session struct {
	ID    string
	Board *Board

	lastSeen time.Time
}

// Sessions keeps per-page boards in memory, keyed by UUID.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessions creates a session table. A ttl <= 0 uses DefaultSessionTTL.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create opens a new session with an empty board.
func (s *Sessions) Create() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{ID: uuid.NewString(), Board: NewBoard(), lastSeen: s.now()}
	s.sessions[sess.ID] = sess
	slog.Debug("Sessions.Create: session created", "sessionID", sess.ID)
	return sess
}

// Get returns the session and refreshes its idle timer.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Sessions.Sweep: expired sessions removed", "count", removed)
	}
	return removed
}
