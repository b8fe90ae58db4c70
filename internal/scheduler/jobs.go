package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type ExpiredSessionDeactivator interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type IdleClientCloser interface {
	CloseIdle(ctx context.Context, ttl time.Duration) int
}

// SweepExpiredSessions marks sessions past expires_at inactive.
func SweepExpiredSessions(sessions ExpiredSessionDeactivator, now func() time.Time, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		n, err := sessions.DeactivateExpired(ctx, now())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.InfoContext(ctx, "expired sessions deactivated", "count", n)
		}
		return nil
	}
}

// CloseIdleClients drops gateway clients that have not been seen within ttl.
func CloseIdleClients(clients IdleClientCloser, ttl time.Duration, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		if n := clients.CloseIdle(ctx, ttl); n > 0 {
			logger.InfoContext(ctx, "idle clients closed", "count", n)
		}
		return nil
	}
}
