package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	awardsGranted   metric.Int64Counter
	awardsSkipped   metric.Int64Counter
	pointsGranted   metric.Int64Counter
	pointsRedeemed  metric.Int64Counter
	checkoutUnits   metric.Int64Counter
	rateLimitVerdct metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "glowhub-portal"
	}
	meter := provider.Meter(name)

	awardsGranted, err := meter.Int64Counter("portal_awards_granted_total")
	if err != nil {
		return nil, err
	}
	awardsSkipped, err := meter.Int64Counter("portal_awards_skipped_total")
	if err != nil {
		return nil, err
	}
	pointsGranted, err := meter.Int64Counter("portal_points_granted_total")
	if err != nil {
		return nil, err
	}
	pointsRedeemed, err := meter.Int64Counter("portal_points_redeemed_total")
	if err != nil {
		return nil, err
	}
	checkoutUnits, err := meter.Int64Counter("portal_checkout_units_total")
	if err != nil {
		return nil, err
	}
	rateLimitVerdct, err := meter.Int64Counter("portal_rate_limit_verdicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		awardsGranted:   awardsGranted,
		awardsSkipped:   awardsSkipped,
		pointsGranted:   pointsGranted,
		pointsRedeemed:  pointsRedeemed,
		checkoutUnits:   checkoutUnits,
		rateLimitVerdct: rateLimitVerdct,
	}, nil
}

// RecordAwardGranted increments grant counts for a category.
func (m *Metrics) RecordAwardGranted(ctx context.Context, category string, points int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("category", strings.TrimSpace(category)))
	m.awardsGranted.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pointsGranted.Add(ctx, points, metric.WithAttributes(attrs...))
}

// RecordAwardSkipped increments duplicate-skip counts for a category.
func (m *Metrics) RecordAwardSkipped(ctx context.Context, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("category", strings.TrimSpace(category)))
	m.awardsSkipped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRedemption increments redeemed point counts.
func (m *Metrics) RecordRedemption(ctx context.Context, points int64) {
	if m == nil {
		return
	}
	m.pointsRedeemed.Add(ctx, points)
}

// RecordCheckoutUnit increments fulfillment unit counts per kind and outcome.
func (m *Metrics) RecordCheckoutUnit(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.checkoutUnits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitVerdict increments rate limit verdict counts.
func (m *Metrics) RecordRateLimitVerdict(ctx context.Context, endpoint, verdict string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("verdict", strings.TrimSpace(verdict)),
	)
	m.rateLimitVerdct.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"category":    {},
	"kind":        {},
	"outcome":     {},
	"endpoint":    {},
	"verdict":     {},
	"collection":  {},
	"status_code": {},
	"route":       {},
	"method":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
