package metrics

import (
	"context"
	"fmt"
	"strconv"
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

// Metrics exposes domain instruments for the network and payment flows.
type Metrics struct {
	registrations      metric.Int64Counter
	paymentTransitions metric.Int64Counter
	commissionPayouts  metric.Int64Counter
	webhookEvents      metric.Int64Counter
	statements         metric.Int64Counter
	rateLimitAllowed   metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New registers the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "sponsornet"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.registrations, err = meter.Int64Counter("sponsornet_node_registrations_total",
		metric.WithDescription("Nodes registered into the network by placement reason.")); err != nil {
		return nil, err
	}
	if m.paymentTransitions, err = meter.Int64Counter("sponsornet_payment_transitions_total",
		metric.WithDescription("Payment state machine transitions by resulting status.")); err != nil {
		return nil, err
	}
	if m.commissionPayouts, err = meter.Int64Counter("sponsornet_commission_payouts_total",
		metric.WithDescription("Commission payouts by sponsor level.")); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = meter.Int64Counter("sponsornet_webhook_events_total",
		metric.WithDescription("Payment provider webhook deliveries by outcome.")); err != nil {
		return nil, err
	}
	if m.statements, err = meter.Int64Counter("sponsornet_statements_total",
		metric.WithDescription("Ledger statements written by type.")); err != nil {
		return nil, err
	}
	if m.rateLimitAllowed, err = meter.Int64Counter("sponsornet_rate_limit_allowed_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("sponsornet_rate_limit_denied_total"); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordRegistration(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.registrations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentTransition(ctx context.Context, status, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.paymentTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCommissionPayout(ctx context.Context, level int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("level", strconv.Itoa(level)))
	m.commissionPayouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStatement(ctx context.Context, statementType, referenceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("statement_type", strings.TrimSpace(statementType)),
		attribute.String("reference_type", strings.TrimSpace(referenceType)),
	)
	m.statements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
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

// Node, user and payment identifiers are never allowed as labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"status":         {},
	"status_code":    {},
	"source":         {},
	"provider":       {},
	"outcome":        {},
	"level":          {},
	"statement_type": {},
	"reference_type": {},
	"reason":         {},
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
