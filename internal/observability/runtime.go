package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/activity-logging-gateway/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runtime{MeterProvider: mp, TracerProvider: tp, LoggerProvider: lp}, nil
}

// Shutdown flushes and stops the providers. Logs go last so shutdown errors
// from the others can still be exported.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	type stopper struct {
		name string
		stop func(context.Context) error
	}
	var stoppers []stopper
	if r.TracerProvider != nil {
		stoppers = append(stoppers, stopper{"tracer provider", r.TracerProvider.Shutdown})
	}
	if r.MeterProvider != nil {
		stoppers = append(stoppers, stopper{"meter provider", r.MeterProvider.Shutdown})
	}
	if r.LoggerProvider != nil {
		stoppers = append(stoppers, stopper{"logger provider", r.LoggerProvider.Shutdown})
	}
	var errs []error
	for _, s := range stoppers {
		if err := s.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
