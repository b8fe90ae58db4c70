package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/database"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/gateway"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/middleware"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

type testEnv struct {
	db       *gorm.DB
	broker   *realtime.InMemoryBroker
	registry *gateway.Registry
	router   http.Handler
}

// testUserHeader carries the caller identity in place of a signed token.
const testUserHeader = "X-Test-User"

func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get(testUserHeader); user != "" {
			claims := &security.Claims{Email: user + "@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: user, ID: "jti-" + user}}
			r = r.WithContext(middleware.WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	broker := realtime.NewInMemoryBroker()
	sessions := repository.NewSessionRepository(db, broker)
	activities := repository.NewActivityRepository(db, broker)
	logs := repository.NewLogRepository(db, broker)
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := gateway.NewRegistry(func(env fingerprint.Environment, users activity.UserResolver) *activity.Logger {
		return activity.NewLogger(activity.Options{
			Sessions:      sessions,
			Activities:    activities,
			Logs:          logs,
			Users:         users,
			Environment:   env,
			FlushInterval: time.Hour,
			Logger:        discard,
		})
	}, discard)
	t.Cleanup(func() { registry.CloseAll(t.Context()) })

	clients := NewClientHandler(registry, nil)
	me := NewMeHandler(sessions, activities, registry)
	rt := NewRealtimeHandler(broker, []string{"*"})

	r := chi.NewRouter()
	r.Use(fakeAuth)
	r.Route("/clients/{client_id}", func(r chi.Router) {
		r.Post("/session", clients.OpenSession)
		r.Delete("/session", clients.CloseSession)
		r.Post("/events", clients.Events)
		r.Post("/navigations", clients.Navigate)
		r.Post("/activities", clients.LogActivity)
		r.Post("/flush", clients.Flush)
		r.Post("/logs/ai-prompts", clients.LogAIPrompt)
		r.Post("/logs/emails", clients.LogEmail)
		r.Post("/logs/files", clients.LogFileUpload)
	})
	r.Get("/me/sessions", me.Sessions)
	r.Delete("/me/sessions/{session_id}", me.RevokeSession)
	r.Get("/me/activities", me.Activities)
	r.Get("/realtime", rt.Stream)

	return &testEnv{db: db, broker: broker, registry: registry, router: r}
}

func (e *testEnv) do(t *testing.T, user, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) open(t *testing.T, user, clientID string) string {
	t.Helper()
	env := `{"user_agent":"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15","screen_width":1440,"screen_height":900,"language":"en-US","timezone":"Europe/Berlin"}`
	rr := e.do(t, user, http.MethodPost, "/clients/"+clientID+"/session", env)
	if rr.Code != http.StatusOK {
		t.Fatalf("open session: %d %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Data openSessionResponse `json:"data"`
	}
	decodeBody(t, rr, &out)
	if !out.Data.Initialized || out.Data.SessionID == "" {
		t.Fatalf("expected initialized session, got %+v", out.Data)
	}
	return out.Data.SessionID
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rr, &out)
	return out.Error.Code
}
