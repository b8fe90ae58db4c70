package auth

import (
	"context"
	"sync"
)

// CachedResolver remembers the resolved user until the provider reports an
// auth state change.
type CachedResolver struct {
	provider    Provider
	mu          sync.Mutex
	cached      *User
	unsubscribe func()
}

func NewCachedResolver(provider Provider) *CachedResolver {
	r := &CachedResolver{provider: provider}
	if n, ok := provider.(Notifier); ok {
		r.unsubscribe = n.OnAuthStateChange(r.handleStateChange)
	}
	return r
}

// UserID returns ErrNoUser when nobody is signed in.
func (r *CachedResolver) UserID(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.cached != nil {
		id := r.cached.ID
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	if r.provider == nil {
		return "", ErrNoUser
	}
	u, err := r.provider.GetUser(ctx)
	if err != nil {
		return "", err
	}
	if u == nil || u.ID == "" {
		return "", ErrNoUser
	}
	r.mu.Lock()
	r.cached = u
	r.mu.Unlock()
	return u.ID, nil
}

func (r *CachedResolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *CachedResolver) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r *CachedResolver) handleStateChange(event Event, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event {
	case EventSignedOut:
		r.cached = nil
	case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		if session != nil && session.User.ID != "" {
			u := session.User
			r.cached = &u
		} else {
			r.cached = nil
		}
	}
}
