// Package tracing wires W3C trace context propagation into the HTTP edges
// of a service. Exporters are configured by the deployment, not here.
package tracing

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Setup installs the global propagator used by otelhttp on both sides.
func Setup() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Handler starts a server span per request, named after the service.
func Handler(h http.Handler, service string) http.Handler {
	return otelhttp.NewHandler(h, service)
}
