package chat

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one owner's view of their conversations: the in-memory message
// lists plus a generation counter per conversation. A turn captures the
// generation when it starts and only mutates the MessageStore while the
// generation is unchanged.
type Session struct {
	owner    string
	messages *MessageStore

	mu          sync.Mutex
	generations map[string]uint64

	lastActive  atomic.Int64
	activeTurns atomic.Int32
}

// NewSession creates an empty session for owner.
func NewSession(owner string) *Session {
	s := &Session{
		owner:       owner,
		messages:    NewMessageStore(),
		generations: make(map[string]uint64),
	}
	s.Touch()
	return s
}

func (s *Session) Owner() string {
	return s.owner
}

// Messages returns the session's MessageStore.
func (s *Session) Messages() *MessageStore {
	return s.messages
}

// Generation returns the conversation's current generation.
func (s *Session) Generation(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[conversationID]
}

// Reset invalidates in-flight turns on the conversation and drops its
// in-memory state. Durable data is untouched.
func (s *Session) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[conversationID]++
	s.messages.Forget(conversationID)
}

// Touch records activity for idle cleanup.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) beginTurn(conversationID string) uint64 {
	s.activeTurns.Add(1)
	s.Touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[conversationID]++
	return s.generations[conversationID]
}

func (s *Session) endTurn() {
	s.activeTurns.Add(-1)
	s.Touch()
}

// ifCurrent runs fn while holding the generation lock, but only when gen is
// still the conversation's generation. It reports whether fn ran.
func (s *Session) ifCurrent(conversationID string, gen uint64, fn func(*MessageStore)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[conversationID] != gen {
		return false
	}
	fn(s.messages)
	return true
}

// SessionRegistry keeps one Session per owner.
type SessionRegistry struct {
	sessions sync.Map // owner -> *Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// GetOrCreate returns the owner's session, creating it on first use.
func (r *SessionRegistry) GetOrCreate(owner string) *Session {
	if v, ok := r.sessions.Load(owner); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	v, _ := r.sessions.LoadOrStore(owner, NewSession(owner))
	return v.(*Session)
}

// Get returns the owner's session if one exists.
func (r *SessionRegistry) Get(owner string) (*Session, bool) {
	v, ok := r.sessions.Load(owner)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CleanupIdle removes sessions with no activity for longer than maxIdle and
// no turn in flight. It returns how many were removed.
func (r *SessionRegistry) CleanupIdle(maxIdle time.Duration) int {
	cleaned := 0
	now := time.Now()
	r.sessions.Range(func(key, value any) bool {
		s, ok := value.(*Session)
		if !ok {
			slog.Error("Unexpected type in session registry, removing",
				"key", key,
				"actual_type", fmt.Sprintf("%T", value),
			)
			r.sessions.Delete(key)
			return true
		}

		idle := now.Sub(s.LastActive())
		if idle <= maxIdle || s.activeTurns.Load() > 0 {
			return true
		}
		if r.sessions.CompareAndDelete(key, value) {
			cleaned++
			slog.Debug("Evicted idle session",
				"owner", s.owner,
				"idle_minutes", idle.Minutes(),
			)
		}
		return true
	})
	return cleaned
}
