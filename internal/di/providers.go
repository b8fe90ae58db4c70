package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/app"
	"github.com/sandeepkv93/activity-logging-gateway/internal/config"
	"github.com/sandeepkv93/activity-logging-gateway/internal/database"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/gateway"
	"github.com/sandeepkv93/activity-logging-gateway/internal/geoip"
	"github.com/sandeepkv93/activity-logging-gateway/internal/health"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/handler"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/middleware"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/router"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
	"github.com/sandeepkv93/activity-logging-gateway/internal/scheduler"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

const redisKeyPrefix = "alg:"

var ConfigSet = wire.NewSet(provideConfig)

var ObservabilitySet = wire.NewSet(
	provideLogging,
	provideLogger,
	provideObservabilityRuntime,
)

var RuntimeInfraSet = wire.NewSet(
	provideOpenDB,
	provideRedisClient,
	provideBroker,
	providePublisher,
	provideGeoResolver,
	provideReadiness,
	provideClosers,
)

var RepositorySet = wire.NewSet(
	repository.NewSessionRepository,
	repository.NewActivityRepository,
	repository.NewLogRepository,
)

var SecuritySet = wire.NewSet(provideJWTManager)

var GatewaySet = wire.NewSet(
	provideLoggerFactory,
	gateway.NewRegistry,
	provideScheduler,
	wire.Bind(new(handler.ClientRegistry), new(*gateway.Registry)),
	wire.Bind(new(handler.LiveSessions), new(*gateway.Registry)),
)

var HTTPSet = wire.NewSet(
	handler.NewValidator,
	handler.NewClientHandler,
	handler.NewMeHandler,
	provideRealtimeHandler,
	provideIngestLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

// logging pairs the process logger with the OTLP log provider bridged into it.
type logging struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

func provideConfig() (*config.Config, error) {
	return config.Load(os.Getenv("ENV_FILE"))
}

func provideLogging(cfg *config.Config) (*logging, error) {
	logger, lp, err := observability.NewLogger(context.Background(), cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &logging{logger: logger, provider: lp}, nil
}

func provideLogger(l *logging) *slog.Logger { return l.logger }

func provideObservabilityRuntime(cfg *config.Config, l *logging) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, l.logger, l.provider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedisClient returns nil when no component is configured for redis.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.UsesRedis() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideBroker(cfg *config.Config, client redis.UniversalClient) realtime.Broker {
	if cfg.RealtimeBackend == "redis" && client != nil {
		return realtime.NewRedisBroker(client, redisKeyPrefix+"realtime")
	}
	return realtime.NewInMemoryBroker()
}

func providePublisher(b realtime.Broker) realtime.Publisher { return b }

func provideGeoResolver(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) geoip.Resolver {
	var store geoip.Store
	switch cfg.GeoIPCacheBackend {
	case "redis":
		if client != nil {
			store = geoip.NewRedisStore(client, redisKeyPrefix+"geoip")
		}
	case "memory":
		store = geoip.NewInMemoryStore()
	}
	if store == nil {
		store = geoip.NewNoopStore()
	}
	upstream := geoip.NewHTTPResolver(cfg.GeoIPEndpoint, cfg.GeoIPTimeout, logger)
	return geoip.NewCachedResolver(upstream, store, cfg.GeoIPCacheTTL, logger)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.DBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.RedisChecker(client))
	}
	return health.NewProbeRunner(2*time.Second, checkers...)
}

func provideClosers(db *gorm.DB, client redis.UniversalClient) app.Closers {
	closers := app.Closers{func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("database handle: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		return nil
	}}
	if client != nil {
		closers = append(closers, func() error {
			if err := client.Close(); err != nil {
				return fmt.Errorf("close redis: %w", err)
			}
			return nil
		})
	}
	return closers
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.AuthJWTIssuer, cfg.AuthJWTAudience, cfg.AuthJWTSecret)
}

func provideLoggerFactory(
	cfg *config.Config,
	sessions repository.SessionRepository,
	activities repository.ActivityRepository,
	logs repository.LogRepository,
	geo geoip.Resolver,
	logger *slog.Logger,
) gateway.LoggerFactory {
	return func(env fingerprint.Environment, users activity.UserResolver) *activity.Logger {
		return activity.NewLogger(activity.Options{
			Sessions:      sessions,
			Activities:    activities,
			Logs:          logs,
			Geo:           geo,
			Users:         users,
			Environment:   env,
			BatchSize:     cfg.ActivityBatchSize,
			FlushInterval: cfg.ActivityFlushInterval,
			SessionTTL:    cfg.SessionTTL,
			Logger:        logger,
		})
	}
}

func provideScheduler(
	cfg *config.Config,
	sessions repository.SessionRepository,
	clients *gateway.Registry,
	logger *slog.Logger,
) (*scheduler.Runner, error) {
	runner := scheduler.New(context.Background(), logger)
	now := func() time.Time { return time.Now().UTC() }
	if _, err := runner.Every("sweep_expired_sessions", cfg.SessionSweepInterval,
		scheduler.SweepExpiredSessions(sessions, now, logger)); err != nil {
		return nil, err
	}
	if _, err := runner.Every("close_idle_clients", cfg.ClientIdleSweepInterval,
		scheduler.CloseIdleClients(clients, cfg.ClientIdleTTL, logger)); err != nil {
		return nil, err
	}
	return runner, nil
}

func provideRealtimeHandler(broker realtime.Broker, cfg *config.Config) *handler.RealtimeHandler {
	return handler.NewRealtimeHandler(broker, cfg.CORSAllowedOrigins)
}

func provideIngestLimiter(cfg *config.Config, client redis.UniversalClient) router.IngestRateLimiterFunc {
	var limiter middleware.Limiter = middleware.NewLocalFixedWindowLimiter()
	if cfg.RateLimitBackend == "redis" && client != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(client, redisKeyPrefix+"ratelimit")
	}
	return middleware.NewRateLimiter(limiter, cfg.IngestRateLimitRPM, time.Minute, "ingest").Middleware()
}

func provideRouterDependencies(
	clientHandler *handler.ClientHandler,
	meHandler *handler.MeHandler,
	realtimeHandler *handler.RealtimeHandler,
	jwtMgr *security.JWTManager,
	ingest router.IngestRateLimiterFunc,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		ClientHandler:   clientHandler,
		MeHandler:       meHandler,
		RealtimeHandler: realtimeHandler,
		JWTManager:      jwtMgr,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		IngestLimiter:   ingest,
		Readiness:       readiness,
		EnableOTelHTTP:  cfg.OTELHTTPEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// MigrationRunner applies the schema without starting the server.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	if err := database.Migrate(m.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
