package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordConfigLoad counts Load calls. The meter is resolved lazily because
// configuration is read before telemetry is installed.
func recordConfigLoad(ctx context.Context, appEnv string, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("activity-logging-gateway").Int64Counter(
			"config.load.events",
			metric.WithDescription("Configuration load attempts by profile and failure class"),
		)
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profileLabel(appEnv)),
		attribute.String("outcome", outcome),
		attribute.String("failure", failureClass(err)),
	))
}

// profileLabel folds APP_ENV spellings into a small fixed label set.
func profileLabel(appEnv string) string {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "", "dev", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "ci":
		return "test"
	default:
		return "other"
	}
}

// failureClass names the first failing concern of a Load error.
func failureClass(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "load env file"):
		return "env_file"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	case strings.Contains(msg, "DATABASE_URL"):
		return "database"
	case strings.Contains(msg, "AUTH_JWT_SECRET"):
		return "auth"
	case strings.Contains(msg, "_BACKEND"):
		return "backend"
	case strings.HasPrefix(msg, "validate config"):
		return "validation"
	default:
		return "unknown"
	}
}
