package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthJWTSecret   string
	AuthJWTIssuer   string
	AuthJWTAudience string

	CORSAllowedOrigins []string

	ActivityBatchSize       int
	ActivityFlushInterval   time.Duration
	SessionTTL              time.Duration
	SessionSweepInterval    time.Duration
	ClientIdleTTL           time.Duration
	ClientIdleSweepInterval time.Duration

	GeoIPEndpoint     string
	GeoIPTimeout      time.Duration
	GeoIPCacheTTL     time.Duration
	GeoIPCacheBackend string

	RealtimeBackend string

	IngestRateLimitRPM int
	RateLimitBackend   string

	LogLevel string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELHTTPEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. When envFile is non-empty the
// file is loaded first; variables already present in the environment win.
func Load(envFile string) (*Config, error) {
	cfg, err := load(envFile)
	recordConfigLoad(context.Background(), os.Getenv("APP_ENV"), err)
	return cfg, err
}

func load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := &Config{
		Env:                os.Getenv("APP_ENV"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		AuthJWTSecret:      os.Getenv("AUTH_JWT_SECRET"),
		AuthJWTIssuer:      getEnv("AUTH_JWT_ISSUER", "activity-logging-gateway"),
		AuthJWTAudience:    getEnv("AUTH_JWT_AUDIENCE", "authenticated"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		ActivityBatchSize:  getEnvInt("ACTIVITY_BATCH_SIZE", 20),
		GeoIPEndpoint:      getEnv("GEOIP_ENDPOINT", "https://ipapi.co"),
		GeoIPCacheBackend:  strings.ToLower(getEnv("GEOIP_CACHE_BACKEND", "memory")),
		RealtimeBackend:    strings.ToLower(getEnv("REALTIME_BACKEND", "memory")),
		IngestRateLimitRPM: getEnvInt("INGEST_RATE_LIMIT_RPM", 600),
		RateLimitBackend:   strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "activity-logging-gateway"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELHTTPEnabled:          getEnvBool("OTEL_HTTP_ENABLED", false),
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ACTIVITY_FLUSH_INTERVAL", "5s", &cfg.ActivityFlushInterval},
		{"SESSION_TTL", "168h", &cfg.SessionTTL},
		{"SESSION_SWEEP_INTERVAL", "10m", &cfg.SessionSweepInterval},
		{"CLIENT_IDLE_TTL", "30m", &cfg.ClientIdleTTL},
		{"CLIENT_IDLE_SWEEP_INTERVAL", "1m", &cfg.ClientIdleSweepInterval},
		{"GEOIP_TIMEOUT", "3s", &cfg.GeoIPTimeout},
		{"GEOIP_CACHE_TTL", "1h", &cfg.GeoIPCacheTTL},
		{"OTEL_METRICS_EXPORT_INTERVAL", "15s", &cfg.OTELMetricsExportInterval},
		{"SHUTDOWN_TIMEOUT", "15s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	ratio, err := strconv.ParseFloat(getEnv("OTEL_TRACE_SAMPLING_RATIO", "1.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse OTEL_TRACE_SAMPLING_RATIO: %w", err)
	}
	cfg.OTELTraceSamplingRatio = ratio

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.AuthJWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 chars")
	}
	if c.ActivityBatchSize <= 0 {
		errs = append(errs, "ACTIVITY_BATCH_SIZE must be > 0")
	}
	if c.ActivityFlushInterval <= 0 {
		errs = append(errs, "ACTIVITY_FLUSH_INTERVAL must be > 0")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > 90*24*time.Hour {
		errs = append(errs, "SESSION_TTL must be between 1s and 90d")
	}
	if c.SessionSweepInterval <= 0 {
		errs = append(errs, "SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.ClientIdleTTL <= 0 || c.ClientIdleSweepInterval <= 0 {
		errs = append(errs, "CLIENT_IDLE_TTL and CLIENT_IDLE_SWEEP_INTERVAL must be > 0")
	}
	switch c.GeoIPCacheBackend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, "GEOIP_CACHE_BACKEND must be one of memory, redis, none")
	}
	switch c.RealtimeBackend {
	case "memory", "redis":
	default:
		errs = append(errs, "REALTIME_BACKEND must be one of memory, redis")
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		errs = append(errs, "RATE_LIMIT_BACKEND must be one of memory, redis")
	}
	if c.IngestRateLimitRPM <= 0 {
		errs = append(errs, "INGEST_RATE_LIMIT_RPM must be > 0")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// UsesRedis reports whether any component is configured with a Redis backend.
func (c *Config) UsesRedis() bool {
	return c.GeoIPCacheBackend == "redis" || c.RealtimeBackend == "redis" || c.RateLimitBackend == "redis"
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
