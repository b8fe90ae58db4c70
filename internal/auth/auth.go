// Package auth holds the contract between activity logging and the identity
// provider. The logger only ever needs the current user id; it never owns
// authentication itself.
package auth

import (
	"context"
	"errors"
	"time"
)

var ErrNoUser = errors.New("no authenticated user")

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session is the provider-side login session, distinct from the device
// sessions the activity logger persists.
type Session struct {
	ID        string    `json:"id"`
	TokenID   string    `json:"-"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// StateChange receives auth events. session is nil after sign out.
type StateChange func(event Event, session *Session)

// Provider returns (nil, nil) when nobody is signed in.
type Provider interface {
	GetUser(ctx context.Context) (*User, error)
	GetSession(ctx context.Context) (*Session, error)
}

// Notifier is implemented by providers that push state changes.
type Notifier interface {
	OnAuthStateChange(fn StateChange) (unsubscribe func())
}
