package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/database"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/gateway"
	"github.com/sandeepkv93/activity-logging-gateway/internal/geoip"
	"github.com/sandeepkv93/activity-logging-gateway/internal/health"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/handler"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/middleware"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/router"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

const testSecret = "integration-secret-0123456789abcdef"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type gatewayEnv struct {
	baseURL   string
	client    *http.Client
	jwt       *security.JWTManager
	redis     *miniredis.Miniredis
	registry  *gateway.Registry
	geoLookup *atomic.Int32
}

// newGatewayTestServer wires the production router over sqlite, miniredis
// and a stub geolocation upstream.
func newGatewayTestServer(t *testing.T, ingestRPM int) *gatewayEnv {
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

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lookups := &atomic.Int32{}
	geoUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_code":"US","timezone":"America/Los_Angeles"}`)
	}))
	t.Cleanup(geoUpstream.Close)
	geo := geoip.NewCachedResolver(
		geoip.NewHTTPResolver(geoUpstream.URL, time.Second, discard),
		geoip.NewRedisStore(rdb, "it:geoip"),
		time.Hour,
		discard,
	)

	broker := realtime.NewRedisBroker(rdb, "it:realtime")
	sessions := repository.NewSessionRepository(db, broker)
	activities := repository.NewActivityRepository(db, broker)
	logs := repository.NewLogRepository(db, broker)

	registry := gateway.NewRegistry(func(env fingerprint.Environment, users activity.UserResolver) *activity.Logger {
		return activity.NewLogger(activity.Options{
			Sessions:      sessions,
			Activities:    activities,
			Logs:          logs,
			Geo:           geo,
			Users:         users,
			Environment:   env,
			FlushInterval: time.Hour,
			Logger:        discard,
		})
	}, discard)

	jwtMgr := security.NewJWTManager("it-issuer", "authenticated", testSecret)
	limiter := middleware.NewRateLimiter(middleware.NewRedisFixedWindowLimiter(rdb, "it:ratelimit"), ingestRPM, time.Minute, "ingest")
	h := router.NewRouter(router.Dependencies{
		ClientHandler:   handler.NewClientHandler(registry, nil),
		MeHandler:       handler.NewMeHandler(sessions, activities, registry),
		RealtimeHandler: handler.NewRealtimeHandler(broker, nil),
		JWTManager:      jwtMgr,
		CORSOrigins:     []string{"http://localhost:3000"},
		IngestLimiter:   limiter.Middleware(),
		Readiness:       health.NewProbeRunner(time.Second, health.DBChecker(db), health.RedisChecker(rdb)),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		registry.CloseAll(context.Background())
		srv.Close()
	})

	return &gatewayEnv{
		baseURL:   srv.URL,
		client:    srv.Client(),
		jwt:       jwtMgr,
		redis:     mr,
		registry:  registry,
		geoLookup: lookups,
	}
}

func (e *gatewayEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.jwt.SignAccessToken(userID, userID+"@example.com", "", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s (status %d): %v", method, url, resp.StatusCode, err)
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v; raw=%s", err, env.Data)
	}
}
