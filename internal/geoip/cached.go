package geoip

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"

	"golang.org/x/sync/singleflight"
)

// CachedResolver memoizes successful lookups and collapses concurrent lookups
// for the same address into one upstream call. Fallback results are never
// cached.
type CachedResolver struct {
	next   Resolver
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, store Store, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if store == nil {
		store = NewNoopStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, store: store, ttl: ttl, logger: logger}
}

func (c *CachedResolver) Lookup(ctx context.Context, ip string) Info {
	key := cacheKey(ip)
	info, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "geoip cache read failed", "ip", ip, "error", err)
	}
	if ok {
		observability.RecordGeoIPLookup(ctx, "cache_hit")
		return info
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		lookupCtx := context.WithoutCancel(ctx)
		resolved := c.next.Lookup(lookupCtx, ip)
		if !resolved.IsFallback() {
			if err := c.store.Set(lookupCtx, key, resolved, c.ttl); err != nil {
				c.logger.WarnContext(ctx, "geoip cache write failed", "ip", ip, "error", err)
			}
		}
		return resolved, nil
	})
	return v.(Info)
}

func cacheKey(ip string) string {
	if ip == "" {
		return "self"
	}
	return ip
}
