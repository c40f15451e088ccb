package observe

import (
	"net/http"

	"github.com/smartcampus/campus-client/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport wraps the transport with otel client instrumentation when
// telemetry and transport instrumentation are both enabled.
func HTTPTransport(wrapped http.RoundTripper, cfg config.ObserveConfig) http.RoundTripper {
	if !cfg.Enabled || !cfg.HTTPTransportEnabled {
		return wrapped
	}

	return otelhttp.NewTransport(
		wrapped,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
