// Package metrics exposes Prometheus collectors for checkout, ledger, gateway and HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder groups the service collectors. A nil Recorder records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	checkoutOutcomes *prometheus.CounterVec
	ledgerOps        *prometheus.CounterVec
	gatewayRequests  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewRecorder registers the collectors on registry under namespace.
func NewRecorder(registry *prometheus.Registry, namespace string) *Recorder {
	r := &Recorder{
		gatherer: registry,
		checkoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_outcomes_total",
			Help:      "Checkout attempts by resolved payment method and outcome.",
		}, []string{"method", "outcome"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Store-credit ledger mutations by operation and result.",
		}, []string{"operation", "result"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway calls by operation and result.",
		}, []string{"operation", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		r.checkoutOutcomes,
		r.ledgerOps,
		r.gatewayRequests,
		r.httpRequests,
		r.httpLatency,
	)
	return r
}

func (r *Recorder) CheckoutOutcome(method, outcome string) {
	if r == nil {
		return
	}
	r.checkoutOutcomes.WithLabelValues(method, outcome).Inc()
}

func (r *Recorder) LedgerOperation(operation, result string) {
	if r == nil {
		return
	}
	r.ledgerOps.WithLabelValues(operation, result).Inc()
}

func (r *Recorder) GatewayRequest(operation, result string) {
	if r == nil {
		return
	}
	r.gatewayRequests.WithLabelValues(operation, result).Inc()
}

func (r *Recorder) HTTPRequest(route, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, status).Inc()
	r.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
