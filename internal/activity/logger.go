// Package activity records what a user does in a client. A Logger owns one
// device session and an in-memory queue of activity records that is flushed
// to storage in batches.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/geoip"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
)

// Defaults applied when Options leaves a field at zero. A queue reaching
// DefaultBatchSize records is flushed right away.
const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 5 * time.Second
	DefaultSessionTTL    = 7 * 24 * time.Hour
)

// UserResolver yields the signed-in user. auth.CachedResolver satisfies it.
type UserResolver interface {
	UserID(ctx context.Context) (string, error)
}

// Options configures a Logger. Sessions and Activities are required.
type Options struct {
	Sessions    repository.SessionRepository
	Activities  repository.ActivityRepository
	Logs        repository.LogRepository
	Geo         geoip.Resolver
	Users       UserResolver
	Environment fingerprint.Environment

	BatchSize     int
	FlushInterval time.Duration
	SessionTTL    time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Logger records activities for one client and owns its device session.
// It is safe for concurrent use.
type Logger struct {
	sessions   repository.SessionRepository
	activities repository.ActivityRepository
	logs       repository.LogRepository
	geo        geoip.Resolver
	users      UserResolver
	env        fingerprint.Environment

	batchSize     int
	flushInterval time.Duration
	sessionTTL    time.Duration
	now           func() time.Time
	logger        *slog.Logger

	// lifecycleMu serializes Initialize and Cleanup.
	lifecycleMu sync.Mutex
	initialized bool
	workerStop  chan struct{}
	workerDone  chan struct{}
	workerOn    atomic.Bool

	identityMu sync.RWMutex
	userID     string
	sessionID  string
	session    *domain.Session

	queueMu sync.Mutex
	queue   []domain.UserActivity
	pending [][]domain.UserActivity

	flushMu sync.Mutex
	kick    chan struct{}
}

func NewLogger(opts Options) *Logger {
	l := &Logger{
		sessions:      opts.Sessions,
		activities:    opts.Activities,
		logs:          opts.Logs,
		geo:           opts.Geo,
		users:         opts.Users,
		env:           opts.Environment,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		sessionTTL:    opts.SessionTTL,
		now:           opts.Now,
		logger:        opts.Logger,
		kick:          make(chan struct{}, 1),
	}
	if l.batchSize <= 0 {
		l.batchSize = DefaultBatchSize
	}
	if l.flushInterval <= 0 {
		l.flushInterval = DefaultFlushInterval
	}
	if l.sessionTTL <= 0 {
		l.sessionTTL = DefaultSessionTTL
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.geo == nil {
		l.geo = staticGeo{}
	}
	return l
}

// Initialize establishes the device session for userID, or for the user the
// resolver reports when userID is empty, and starts the flush worker. It
// returns the session id, which is empty when the user cannot be resolved or
// the session could not be stored. Calling it again once initialized is a
// no-op.
func (l *Logger) Initialize(ctx context.Context, userID string) string {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.initialized {
		return l.SessionID()
	}
	// Queued events outlive a failed initialization, so the worker runs either way.
	l.startWorker(ctx)

	if userID == "" {
		userID = l.resolveUser(ctx)
	}
	if userID == "" {
		l.logger.WarnContext(ctx, "activity logger initialized without user")
		observability.RecordSessionLifecycle(ctx, "initialize", "no_user")
		return ""
	}

	session := l.establishSession(ctx, userID)

	l.identityMu.Lock()
	l.userID = userID
	l.session = session
	l.sessionID = ""
	if session != nil {
		l.sessionID = session.ID
	}
	sessionID := l.sessionID
	l.identityMu.Unlock()

	l.initialized = true
	observability.AuditContext(ctx, l.logger, "activity.session.initialized", "user_id", userID, "session_id", sessionID)
	return sessionID
}

func (l *Logger) establishSession(ctx context.Context, userID string) *domain.Session {
	now := l.now()
	device := fingerprint.Describe(l.env)
	geo := l.geo.Lookup(ctx, l.env.IPAddress)
	ip := geo.IP
	if geo.IsFallback() && l.env.IPAddress != "" {
		ip = l.env.IPAddress
	}

	existing, err := l.sessions.FindReusable(ctx, userID, ip, now)
	switch {
	case err == nil:
		if err := l.sessions.Touch(ctx, existing, now); err != nil {
			l.logger.ErrorContext(ctx, "refresh session failed", "session_id", existing.ID, "error", err)
			observability.RecordSessionLifecycle(ctx, "reuse", "error")
			return nil
		}
		observability.RecordSessionLifecycle(ctx, "reuse", "success")
		return existing
	case !errors.Is(err, repository.ErrSessionNotFound):
		l.logger.ErrorContext(ctx, "lookup reusable session failed", "user_id", userID, "error", err)
		observability.RecordSessionLifecycle(ctx, "create", "error")
		return nil
	}

	timezone := geo.Timezone
	if timezone == "" {
		timezone = device.Timezone
	}
	session := &domain.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		DeviceName:        device.Name,
		DeviceType:        device.Type,
		OSName:            device.OSName,
		OSVersion:         device.OSVersion,
		BrowserName:       device.BrowserName,
		BrowserVersion:    device.BrowserVersion,
		ScreenResolution:  device.ScreenResolution,
		IPAddress:         ip,
		Country:           geo.Country,
		Region:            geo.Region,
		City:              geo.City,
		Latitude:          geo.Latitude,
		Longitude:         geo.Longitude,
		Timezone:          timezone,
		UserAgent:         l.env.UserAgent,
		Language:          device.Language,
		DeviceFingerprint: device.Fingerprint,
		IsCurrent:         true,
		IsActive:          true,
		LastActivityAt:    now,
		LoginAt:           now,
		ExpiresAt:         now.Add(l.sessionTTL),
	}
	if err := l.sessions.Create(ctx, session); err != nil {
		l.logger.ErrorContext(ctx, "create session failed", "user_id", userID, "error", err)
		observability.RecordSessionLifecycle(ctx, "create", "error")
		return nil
	}
	observability.RecordSessionLifecycle(ctx, "create", "success")
	return session
}

// Cleanup stops the worker, flushes what is queued and marks the session
// inactive. In-memory state is cleared even when storage calls fail.
func (l *Logger) Cleanup(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	l.stopWorker()
	if err := l.Flush(ctx); err != nil {
		l.logger.ErrorContext(ctx, "final flush failed", "error", err, "pending", l.QueueLen())
	}

	l.identityMu.Lock()
	session := l.session
	userID := l.userID
	l.session = nil
	l.sessionID = ""
	l.userID = ""
	l.identityMu.Unlock()

	if session != nil {
		if err := l.sessions.MarkInactive(ctx, session, l.now()); err != nil {
			l.logger.ErrorContext(ctx, "mark session inactive failed", "session_id", session.ID, "error", err)
			observability.RecordSessionLifecycle(ctx, "cleanup", "error")
		} else {
			observability.RecordSessionLifecycle(ctx, "cleanup", "success")
		}
		observability.AuditContext(ctx, l.logger, "activity.session.closed", "user_id", userID, "session_id", session.ID)
	}
	l.initialized = false
}

func (l *Logger) Initialized() bool {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	return l.initialized
}

func (l *Logger) SessionID() string {
	l.identityMu.RLock()
	defer l.identityMu.RUnlock()
	return l.sessionID
}

func (l *Logger) UserID() string {
	l.identityMu.RLock()
	defer l.identityMu.RUnlock()
	return l.userID
}

// QueueLen counts records not yet persisted, including overflow batches
// waiting for the worker.
func (l *Logger) QueueLen() int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	n := len(l.queue)
	for _, b := range l.pending {
		n += len(b)
	}
	return n
}

// resolveUser returns the established user, falling back to the resolver.
// Resolution failures yield an empty id.
func (l *Logger) resolveUser(ctx context.Context) string {
	if id := l.UserID(); id != "" {
		return id
	}
	if l.users == nil {
		return ""
	}
	id, err := l.users.UserID(ctx)
	if err != nil {
		return ""
	}
	return id
}

type staticGeo struct{}

func (staticGeo) Lookup(context.Context, string) geoip.Info { return geoip.Fallback() }
