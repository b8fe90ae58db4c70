package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/activity-logging-gateway/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "activity-logging-gateway"

type AppMetrics struct {
	activityEnqueued  metric.Int64Counter
	flushEvents       metric.Int64Counter
	flushBatchSize    metric.Int64Histogram
	sessionLifecycle  metric.Int64Counter
	specializedWrites metric.Int64Counter
	repositoryOps     metric.Int64Counter
	geoIPLookups      metric.Int64Counter
	clientEvents      metric.Int64Counter
	tokenValidations  metric.Int64Counter
	rateLimitDecision metric.Int64Counter
	realtimeStreams   metric.Int64UpDownCounter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	enqueued, err := meter.Int64Counter("activity.enqueued")
	if err != nil {
		return nil, err
	}
	flushEvents, err := meter.Int64Counter("activity.flush.events")
	if err != nil {
		return nil, err
	}
	batchSize, err := meter.Int64Histogram("activity.flush.batch_size")
	if err != nil {
		return nil, err
	}
	lifecycle, err := meter.Int64Counter("activity.session.lifecycle")
	if err != nil {
		return nil, err
	}
	specialized, err := meter.Int64Counter("activity.specialized.writes")
	if err != nil {
		return nil, err
	}
	repoOps, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	geo, err := meter.Int64Counter("geoip.lookups")
	if err != nil {
		return nil, err
	}
	clientEvents, err := meter.Int64Counter("gateway.client.events")
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("auth.access_token.validations")
	if err != nil {
		return nil, err
	}
	rateLimit, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}
	streams, err := meter.Int64UpDownCounter("realtime.streams.active")
	if err != nil {
		return nil, err
	}
	return &AppMetrics{
		activityEnqueued:  enqueued,
		flushEvents:       flushEvents,
		flushBatchSize:    batchSize,
		sessionLifecycle:  lifecycle,
		specializedWrites: specialized,
		repositoryOps:     repoOps,
		geoIPLookups:      geo,
		clientEvents:      clientEvents,
		tokenValidations:  tokens,
		rateLimitDecision: rateLimit,
		realtimeStreams:   streams,
	}, nil
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	return m
}

func RecordActivityEnqueued(ctx context.Context, activityType string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.activityEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("activity_type", activityType)))
}

func RecordActivityFlush(ctx context.Context, outcome string, batchSize int) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.flushEvents.Add(ctx, int64(batchSize), metric.WithAttributes(attribute.String("outcome", outcome)))
	m.flushBatchSize.Record(ctx, int64(batchSize), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordSessionLifecycle(ctx context.Context, action, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.sessionLifecycle.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordSpecializedWrite(ctx context.Context, kind, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.specializedWrites.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordRepositoryOperation(ctx context.Context, table, op, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("table", table),
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordGeoIPLookup(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.geoIPLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordClientEvent(ctx context.Context, action string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.clientEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenValidations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		),
	)
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitDecision.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRealtimeStream tracks open websocket streams; delta is +1 or -1.
func RecordRealtimeStream(ctx context.Context, delta int64) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.realtimeStreams.Add(ctx, delta)
}
