package metrics

import (
	"errors"
	"net/http"

	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "booking"

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// New registers the booking collectors on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Reservation operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and method.",
			},
			[]string{"route", "method"},
		),
	}
	reg.MustRegister(
		m.operations,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe counts one reservation operation.
func (m *Metrics) Observe(operation string, err error) {
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

// Outcome maps an operation error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrUnauthenticated):
		return "denied"
	case errors.Is(err, model.ErrConfiguration):
		return "misconfigured"
	default:
		return "error"
	}
}

// Middleware counts requests by the ServeMux pattern that matched them. It
// must wrap the mux directly so the pattern is visible after dispatch.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, r.Method).Inc()
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
