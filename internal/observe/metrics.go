package observe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/smartcampus/campus-client/internal/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsObserver records gateway activity as otel metrics.
type MetricsObserver struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	refreshes metric.Int64Counter
}

var _ gateway.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver creates the instruments on meter, or on the global meter
// provider when meter is nil.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	if meter == nil {
		meter = otel.Meter("github.com/smartcampus/campus-client/internal/gateway")
	}

	requests, err := meter.Int64Counter(
		"campus.gateway.requests",
		metric.WithDescription("Requests sent to the campus API"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"campus.gateway.request.duration",
		metric.WithDescription("Campus API request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request duration histogram: %w", err)
	}

	refreshes, err := meter.Int64Counter(
		"campus.gateway.refreshes",
		metric.WithDescription("Access token refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh counter: %w", err)
	}

	return &MetricsObserver{
		requests:  requests,
		duration:  duration,
		refreshes: refreshes,
	}, nil
}

func (m *MetricsObserver) Exchanged(ctx context.Context, e gateway.Exchange) {
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", e.Method),
		attribute.String("campus.outcome", exchangeOutcome(e)),
		attribute.Bool("campus.replay", e.Replay),
	)

	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, e.Duration.Seconds(), attrs)
}

func (m *MetricsObserver) Refreshed(ctx context.Context, r gateway.RefreshOutcome) {
	outcome := "success"
	if r.Err != nil {
		outcome = "failure"
	}

	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("campus.outcome", outcome)))
}

// exchangeOutcome is "error" for transport failures and the status class
// (2xx, 4xx, ...) otherwise.
func exchangeOutcome(e gateway.Exchange) string {
	if e.Err != nil || e.Status == 0 {
		return "error"
	}
	return strconv.Itoa(e.Status/100) + "xx"
}
