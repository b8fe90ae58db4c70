package auth

import (
	"context"
	"sync"

	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

// SessionState is a Provider fed by verified access tokens, one per gateway
// client.
type SessionState struct {
	mu        sync.RWMutex
	session   *Session
	nextID    int
	listeners map[int]StateChange
}

func NewSessionState() *SessionState {
	return &SessionState{listeners: make(map[int]StateChange)}
}

func (s *SessionState) GetUser(context.Context) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	u := s.session.User
	return &u, nil
}

func (s *SessionState) GetSession(context.Context) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *SessionState) OnAuthStateChange(fn StateChange) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ApplyClaims records the session carried by a freshly verified token and
// emits the event describing the transition, if any.
func (s *SessionState) ApplyClaims(claims *security.Claims) {
	next := SessionFromClaims(claims)
	if next == nil {
		return
	}
	s.mu.Lock()
	prev := s.session
	s.session = next
	s.mu.Unlock()

	switch {
	case prev == nil || prev.User.ID != next.User.ID:
		s.emit(EventSignedIn, next)
	case prev.User.Email != next.User.Email:
		s.emit(EventUserUpdated, next)
	case prev.TokenID != next.TokenID:
		s.emit(EventTokenRefreshed, next)
	}
}

func (s *SessionState) SignOut() {
	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.mu.Unlock()
	if prev != nil {
		s.emit(EventSignedOut, nil)
	}
}

func (s *SessionState) emit(event Event, session *Session) {
	s.mu.RLock()
	fns := make([]StateChange, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		var cp *Session
		if session != nil {
			c := *session
			cp = &c
		}
		fn(event, cp)
	}
}

func SessionFromClaims(claims *security.Claims) *Session {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	s := &Session{
		ID:      claims.SessionID,
		TokenID: claims.ID,
		User:    User{ID: claims.Subject, Email: claims.Email},
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}
