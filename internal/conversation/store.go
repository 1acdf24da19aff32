// Package conversation implements the compose, verify, confirm and send
// flow for a single sender.
package conversation

import (
	"sync"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/metrics"
)

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// Store holds in-flight sessions keyed by owner id. Sessions live only in
// memory: they are removed on send, cancel, restart or idle sweep, and a
// process restart loses them all.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]domain.ConversationSession

	locksMu sync.Mutex
	locks   map[int64]*ownerLock

	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStore creates an empty session store. m may be nil.
func NewStore(m *metrics.Metrics) *Store {
	return &Store{
		sessions: make(map[int64]domain.ConversationSession),
		locks:    make(map[int64]*ownerLock),
		metrics:  m,
		now:      time.Now,
	}
}

// LockOwner serializes event handling for one owner. The returned func
// releases the lock and must be called exactly once.
func (s *Store) LockOwner(ownerID int64) func() {
	s.locksMu.Lock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &ownerLock{}
		s.locks[ownerID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, ownerID)
		}
		s.locksMu.Unlock()
	}
}

func (s *Store) ownerBusy(ownerID int64) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	_, busy := s.locks[ownerID]
	return busy
}

// Get returns the owner's session, or an idle session when none exists.
func (s *Store) Get(ownerID int64) domain.ConversationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[ownerID]; ok {
		return sess
	}
	return domain.ConversationSession{OwnerID: ownerID, State: domain.StateIdle}
}

// State returns the owner's current state.
func (s *Store) State(ownerID int64) domain.ConversationState {
	return s.Get(ownerID).State
}

// Put stores sess, replacing any existing session of the same owner.
// Storing an idle session is equivalent to Clear.
func (s *Store) Put(sess domain.ConversationSession) {
	if sess.State == domain.StateIdle {
		s.Clear(sess.OwnerID)
		return
	}
	sess.UpdatedAt = s.now()

	s.mu.Lock()
	s.sessions[sess.OwnerID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
}

// Clear removes the owner's session. It reports whether one existed.
func (s *Store) Clear(ownerID int64) bool {
	s.mu.Lock()
	_, existed := s.sessions[ownerID]
	delete(s.sessions, ownerID)
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
	return existed
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions untouched for longer than idle. Owners whose
// events are being handled right now are skipped.
func (s *Store) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	removed := 0
	for owner, sess := range s.sessions {
		if !sess.UpdatedAt.Before(cutoff) || s.ownerBusy(owner) {
			continue
		}
		delete(s.sessions, owner)
		removed++
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		s.metrics.SetActiveSessions(n)
	}
	return removed
}
