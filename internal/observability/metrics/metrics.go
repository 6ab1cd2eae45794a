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
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
	creditTransactions  metric.Int64Counter
	bonusClaims         metric.Int64Counter
	insufficientCredits metric.Int64Counter
}

const exportInterval = 10 * time.Second

// NewProvider installs the global meter provider. With OTel disabled the
// instruments are bound to a no-op provider so callers never branch.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Named("metrics").Info("otlp metrics export enabled",
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return provider, nil
}

// New creates the ledger and rate limit counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditgate"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.rateLimitAllowed, "creditgate_rate_limit_allowed_total", "Requests admitted by a rate limit class."},
		{&m.rateLimitDenied, "creditgate_rate_limit_denied_total", "Requests rejected by a rate limit class."},
		{&m.creditTransactions, "creditgate_credit_transactions_total", "Rows appended to the credit ledger."},
		{&m.bonusClaims, "creditgate_monthly_bonus_claims_total", "Monthly bonus claim attempts."},
		{&m.insufficientCredits, "creditgate_insufficient_credits_total", "Debits rejected for lack of credits."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// NewNop returns instruments bound to a no-op meter.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, class string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitAllowed, attribute.String("class", class))
}

// RecordRateLimitDenied counts a 429. reason is "window" for a soft denial
// and "blocked" while a block is active.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, class, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitDenied, attribute.String("class", class), attribute.String("reason", reason))
}

func (m *Metrics) RecordCreditTransaction(ctx context.Context, kind, source string) {
	if m == nil {
		return
	}
	add(ctx, m.creditTransactions, attribute.String("kind", kind), attribute.String("source", source))
}

// RecordBonusClaim counts claim attempts by outcome (claimed or already_claimed).
func (m *Metrics) RecordBonusClaim(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.bonusClaims, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordInsufficientCredits(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	add(ctx, m.insufficientCredits, attribute.String("feature", feature))
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	for i := range attrs {
		attrs[i] = attribute.String(string(attrs[i].Key), strings.TrimSpace(attrs[i].Value.AsString()))
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"class":       {},
	"reason":      {},
	"kind":        {},
	"source":      {},
	"outcome":     {},
	"feature":     {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes keeps only the fixed label set. User ids and wish ids
// never become metric labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}
