package auth

import (
	"sync"
	"time"

	"kinhelp.org/internal/stream"
)

type SessionKind string

const (
	SessionStarted SessionKind = "started"
	SessionEnded   SessionKind = "ended"
)

// SessionEvent reports a token being issued or explicitly ended.
type SessionEvent struct {
	Kind    SessionKind `json:"kind"`
	UserID  string      `json:"user_id"`
	TokenID string      `json:"token_id"`
	At      time.Time   `json:"at"`
}

// Sessions tracks ended tokens and broadcasts session changes to subscribers
// (long-lived streams close themselves when their session ends).
type Sessions struct {
	hub *stream.Hub[SessionEvent]
	now func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

func NewSessions() *Sessions {
	return &Sessions{
		hub:     stream.New[SessionEvent](),
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Subscribe returns a channel of session events and the func releasing it.
func (s *Sessions) Subscribe(buffer int) (<-chan SessionEvent, func()) {
	return s.hub.Subscribe(buffer)
}

func (s *Sessions) Started(c *Claims) {
	s.hub.Publish(SessionEvent{Kind: SessionStarted, UserID: c.Subject, TokenID: c.ID, At: s.now().UTC()})
}

// End revokes the token until its natural expiry and notifies subscribers.
func (s *Sessions) End(c *Claims) {
	now := s.now()
	s.mu.Lock()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	if c.ExpiresAt != nil {
		s.revoked[c.ID] = c.ExpiresAt.Time
	}
	s.mu.Unlock()
	s.hub.Publish(SessionEvent{Kind: SessionEnded, UserID: c.Subject, TokenID: c.ID, At: now.UTC()})
}

func (s *Sessions) Revoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	return ok && s.now().Before(exp)
}

func (s *Sessions) Close() { s.hub.Close() }
