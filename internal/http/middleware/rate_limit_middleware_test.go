package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

func TestLocalFixedWindowLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := &localFixedWindowLimiter{store: map[string]*windowState{}, now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := l.Allow(ctx, "k", 2, time.Minute)
		if !d.Allowed {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	if d, _ := l.Allow(ctx, "k", 2, time.Minute); d.Allowed {
		t.Fatal("third hit should be denied")
	}
	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "k", 2, time.Minute); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("expected new window, got %+v", d)
	}
}

func TestRedisFixedWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisFixedWindowLimiter(client, "test")
	ctx := context.Background()

	d1, err := l.Allow(ctx, "k", 1, time.Minute)
	if err != nil || !d1.Allowed {
		t.Fatalf("first hit: %+v %v", d1, err)
	}
	d2, err := l.Allow(ctx, "k", 1, time.Minute)
	if err != nil || d2.Allowed {
		t.Fatalf("second hit should be denied: %+v %v", d2, err)
	}
	mr.FastForward(time.Minute + time.Second)
	d3, err := l.Allow(ctx, "k", 1, time.Minute)
	if err != nil || !d3.Allowed {
		t.Fatalf("expected window reset: %+v %v", d3, err)
	}
}

func TestRateLimiterMiddlewareKeysBySubject(t *testing.T) {
	rl := NewRateLimiter(NewLocalFixedWindowLimiter(), 1, time.Minute, "ingest")
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		claims := &security.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: user}}
		req = req.WithContext(WithClaims(req.Context(), claims))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	if got := call("u1"); got != http.StatusNoContent {
		t.Fatalf("expected first call allowed, got %d", got)
	}
	if got := call("u1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected second call limited, got %d", got)
	}
	if got := call("u2"); got != http.StatusNoContent {
		t.Fatalf("expected other subject allowed, got %d", got)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func TestRateLimiterFailsOpen(t *testing.T) {
	h := NewRateLimiter(failingLimiter{}, 1, time.Minute, "ingest").Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected request allowed on backend error, got %d", rr.Code)
	}
}
