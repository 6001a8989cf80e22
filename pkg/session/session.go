// Package session tracks the state Kai keeps per browser connection.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-kai/pkg/reply"
)

// Session is one connected browser.
type Session struct {
	ID          string
	ConnectedAt time.Time

	// Conversation is nil when no reply backend is configured.
	Conversation reply.Conversation

	// turn serializes reply generation within the session.
	turn sync.Mutex

	mu        sync.Mutex
	lastSpeak time.Time
	chats     int
	frames    int
}

// Turn runs fn while holding the session's reply turn, so two replies in
// one session never overlap.
func (s *Session) Turn(fn func()) {
	s.turn.Lock()
	defer s.turn.Unlock()
	fn()
}

// CanSpeak reports whether emotion speech may start at now, i.e. whether
// cooldown has passed since the last reaction recorded by Spoke.
func (s *Session) CanSpeak(now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSpeak.IsZero() || now.Sub(s.lastSpeak) >= cooldown
}

// Spoke records a reaction that produced audio at t.
func (s *Session) Spoke(t time.Time) {
	s.mu.Lock()
	s.lastSpeak = t
	s.mu.Unlock()
}

// CountChat records a chat message.
func (s *Session) CountChat() {
	s.mu.Lock()
	s.chats++
	s.mu.Unlock()
}

// CountFrame records a processed frame.
func (s *Session) CountFrame() {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

// Info is a read-only summary for the sessions endpoint.
type Info struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	AgeSeconds  float64   `json:"age_seconds"`
	Chats       int       `json:"chats"`
	Frames      int       `json:"frames"`
	Remembered  int       `json:"remembered_messages"`
}

func (s *Session) info(now time.Time) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	remembered := 0
	if s.Conversation != nil {
		remembered = len(s.Conversation.Messages())
	}
	return Info{
		ID:          s.ID,
		ConnectedAt: s.ConnectedAt,
		AgeSeconds:  now.Sub(s.ConnectedAt).Seconds(),
		Chats:       s.chats,
		Frames:      s.frames,
		Remembered:  remembered,
	}
}

// Registry maps connection ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// NewID returns a fresh connection id.
func NewID() string {
	return uuid.NewString()
}

// Connect registers a session under id, replacing any previous one.
func (r *Registry) Connect(id string, conv reply.Conversation) *Session {
	s := &Session{
		ID:           id,
		ConnectedAt:  r.now(),
		Conversation: conv,
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Disconnect removes id. It reports whether a session existed.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns summaries ordered by connection time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	now := r.now()
	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.info(now))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
