package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/database"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/gateway"
	"github.com/sandeepkv93/activity-logging-gateway/internal/health"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/handler"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/middleware"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz123456"

func newRouterTestDeps(t *testing.T) Dependencies {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sessions := repository.NewSessionRepository(db, nil)
	activities := repository.NewActivityRepository(db, nil)
	registry := gateway.NewRegistry(func(env fingerprint.Environment, users activity.UserResolver) *activity.Logger {
		return activity.NewLogger(activity.Options{
			Sessions:      sessions,
			Activities:    activities,
			Logs:          repository.NewLogRepository(db, nil),
			Users:         users,
			Environment:   env,
			FlushInterval: time.Hour,
			Logger:        discard,
		})
	}, discard)
	t.Cleanup(func() { registry.CloseAll(context.Background()) })
	return Dependencies{
		ClientHandler:   handler.NewClientHandler(registry, nil),
		MeHandler:       handler.NewMeHandler(sessions, activities, registry),
		RealtimeHandler: handler.NewRealtimeHandler(realtime.NewInMemoryBroker(), nil),
		JWTManager:      security.NewJWTManager("iss", "aud", testSecret),
		CORSOrigins:     []string{"http://localhost"},
		EnableOTelHTTP:  false,
	}
}

func perform(r http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func bearerToken(t *testing.T, jwtMgr *security.JWTManager, userID string) string {
	t.Helper()
	token, err := jwtMgr.SignAccessToken(userID, userID+"@example.com", "", time.Hour)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return token
}

func TestRouterHealthReadyNilAndUnreadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		r := NewRouter(newRouterTestDeps(t))
		rr := perform(r, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready status payload, got %s", rr.Body.String())
		}
	})

	t.Run("failing checker returns 503", func(t *testing.T) {
		dep := newRouterTestDeps(t)
		dep.Readiness = health.NewProbeRunner(time.Second, health.CheckerFunc(func(context.Context) health.CheckResult {
			return health.CheckResult{Name: "db", Healthy: false, Error: "db down"}
		}))
		rr := perform(NewRouter(dep), http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "DEPENDENCY_UNREADY") {
			t.Fatalf("expected unready code, got %s", rr.Body.String())
		}
	})
}

func TestRouterRequiresAccessToken(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))
	for _, path := range []string{"/api/v1/me/sessions", "/api/v1/clients/tab-1/flush", "/api/v1/realtime"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "flush") {
			method = http.MethodPost
		}
		rr := perform(r, method, path, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestRouterClientLifecycle(t *testing.T) {
	dep := newRouterTestDeps(t)
	r := NewRouter(dep)
	auth := map[string]string{"Authorization": "Bearer " + bearerToken(t, dep.JWTManager, "u1")}

	rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/session", auth, `{"user_agent":"curl/8.0"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("open: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/events", auth, `{"type":"offline"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("events: %d %s", rr.Code, rr.Body.String())
	}
	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-2/events", auth, `{"type":"offline"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unopened client, got %d", rr.Code)
	}
}

func TestRouterIngestLimiterOnlyGuardsCapture(t *testing.T) {
	dep := newRouterTestDeps(t)
	dep.IngestLimiter = middleware.NewRateLimiter(middleware.NewLocalFixedWindowLimiter(), 1, time.Minute, "ingest").Middleware()
	r := NewRouter(dep)
	auth := map[string]string{"Authorization": "Bearer " + bearerToken(t, dep.JWTManager, "u1")}

	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/session", auth, ""); rr.Code != http.StatusOK {
		t.Fatalf("open: %d", rr.Code)
	}
	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/events", auth, `{"type":"online"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("first event: %d", rr.Code)
	}
	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/events", auth, `{"type":"online"}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := perform(r, http.MethodPost, "/api/v1/clients/tab-1/flush", auth, ""); rr.Code == http.StatusTooManyRequests {
		t.Fatal("flush should not be rate limited")
	}
}
