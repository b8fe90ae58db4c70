// Package gateway keeps the per-client activity loggers alive between
// requests. A client is one browser instance of one user.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/auth"
	"github.com/sandeepkv93/activity-logging-gateway/internal/capture"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidClient  = errors.New("invalid client id")
)

const (
	maxClientIDLen  = 128
	maxOpenAttempts = 3
)

type Key struct {
	UserID   string
	ClientID string
}

// LoggerFactory builds the activity logger for a new client.
type LoggerFactory func(env fingerprint.Environment, users activity.UserResolver) *activity.Logger

type Client struct {
	Key        Key
	Logger     *activity.Logger
	Tracker    *capture.Tracker
	Dispatcher *capture.Dispatcher
	Auth       *auth.SessionState

	users    *auth.CachedResolver
	openedAt time.Time
	lastSeen atomic.Int64

	// lifeMu orders mount against shutdown. detached is set, under the
	// registry lock, when the client leaves the registry.
	lifeMu   sync.Mutex
	detached atomic.Bool
}

// mount binds the client to its device session. It reports false when the
// client was closed after being looked up.
func (c *Client) mount(ctx context.Context, claims *security.Claims) (string, bool) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.detached.Load() {
		return "", false
	}
	c.Auth.ApplyClaims(claims)
	return c.Tracker.Mount(ctx, c.Key.UserID), true
}

func (c *Client) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

func (c *Client) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()).UTC() }

func (c *Client) OpenedAt() time.Time { return c.openedAt }

// Dispatch delivers browser events to the client's tracker and reports how
// many were handled by a listener.
func (c *Client) Dispatch(ctx context.Context, events []capture.Event) int {
	handled := 0
	for _, e := range events {
		if c.Dispatcher.Dispatch(ctx, e) > 0 {
			handled++
		}
	}
	return handled
}

type Registry struct {
	mu        sync.Mutex
	clients   map[Key]*Client
	newLogger LoggerFactory
	now       func() time.Time
	logger    *slog.Logger
}

func NewRegistry(factory LoggerFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients:   make(map[Key]*Client),
		newLogger: factory,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Open returns the client for the token's user and clientID, creating and
// mounting it on first use. The returned id is the device session id, empty
// when the session could not be established. A client closed while Open is
// binding it is replaced by a fresh one.
func (r *Registry) Open(ctx context.Context, claims *security.Claims, clientID string, env fingerprint.Environment) (*Client, string, error) {
	if clientID == "" || len(clientID) > maxClientIDLen {
		return nil, "", ErrInvalidClient
	}
	key := Key{UserID: claims.UserID(), ClientID: clientID}

	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		c, created := r.lookupOrCreate(key, env)
		sessionID, ok := c.mount(ctx, claims)
		if !ok {
			continue
		}
		if created {
			observability.RecordClientEvent(ctx, "open")
			r.logger.InfoContext(ctx, "client opened", "user_id", key.UserID, "client_id", clientID, "session_id", sessionID)
		}
		return c, sessionID, nil
	}
	return nil, "", ErrClientNotFound
}

func (r *Registry) lookupOrCreate(key Key, env fingerprint.Environment) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		c.touch(r.now())
		return c, false
	}
	state := auth.NewSessionState()
	users := auth.NewCachedResolver(state)
	c := &Client{
		Key:        key,
		Auth:       state,
		users:      users,
		Dispatcher: capture.NewDispatcher(),
		Logger:     r.newLogger(env, users),
		openedAt:   r.now(),
	}
	c.Tracker = capture.NewTracker(c.Logger, c.Dispatcher)
	c.touch(c.openedAt)
	r.clients[key] = c
	return c, true
}

// Get returns an open client and marks it as seen. Clients of other users
// are reported as not found.
func (r *Registry) Get(userID, clientID string) (*Client, error) {
	r.mu.Lock()
	c, ok := r.clients[Key{UserID: userID, ClientID: clientID}]
	r.mu.Unlock()
	if !ok {
		return nil, ErrClientNotFound
	}
	c.touch(r.now())
	return c, nil
}

// Close unmounts the client, which flushes its queue and marks its session
// inactive.
func (r *Registry) Close(ctx context.Context, userID, clientID string) error {
	key := Key{UserID: userID, ClientID: clientID}
	r.mu.Lock()
	c, ok := r.clients[key]
	if ok {
		r.detach(key, c)
	}
	r.mu.Unlock()
	if !ok {
		return ErrClientNotFound
	}
	r.shutdown(ctx, c, "close")
	return nil
}

// CloseIdle closes clients not seen for longer than ttl.
func (r *Registry) CloseIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	var idle []*Client
	for key, c := range r.clients {
		if c.LastSeen().Before(cutoff) {
			idle = append(idle, c)
			r.detach(key, c)
		}
	}
	r.mu.Unlock()
	for _, c := range idle {
		r.shutdown(ctx, c, "idle_close")
	}
	return len(idle)
}

func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	all := make([]*Client, 0, len(r.clients))
	for key, c := range r.clients {
		all = append(all, c)
		r.detach(key, c)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			r.shutdown(ctx, c, "shutdown_close")
		}(c)
	}
	wg.Wait()
	return len(all)
}

// CloseSession closes the user's clients bound to the device session
// sessionID and returns how many were closed.
func (r *Registry) CloseSession(ctx context.Context, userID, sessionID string) int {
	r.mu.Lock()
	var bound []*Client
	for key, c := range r.clients {
		if key.UserID == userID && c.Logger.SessionID() == sessionID {
			bound = append(bound, c)
			r.detach(key, c)
		}
	}
	r.mu.Unlock()
	for _, c := range bound {
		r.shutdown(ctx, c, "revoke_close")
	}
	return len(bound)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// SessionIDs lists the device sessions currently held open for userID.
func (r *Registry) SessionIDs(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for key, c := range r.clients {
		if key.UserID != userID {
			continue
		}
		if id := c.Logger.SessionID(); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// detach removes c from the registry. Callers hold r.mu.
func (r *Registry) detach(key Key, c *Client) {
	c.detached.Store(true)
	delete(r.clients, key)
}

func (r *Registry) shutdown(ctx context.Context, c *Client, action string) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.Tracker.Unmount(ctx)
	c.users.Close()
	c.Auth.SignOut()
	observability.RecordClientEvent(ctx, action)
	r.logger.InfoContext(ctx, "client closed", "user_id", c.Key.UserID, "client_id", c.Key.ClientID, "reason", action)
}
