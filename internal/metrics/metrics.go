package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the Prometheus instruments used across the service.
type Collectors struct {
	StoreOps     *prometheus.CounterVec
	StoreLatency *prometheus.HistogramVec
	Captures     *prometheus.CounterVec
	RateLimited  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "store_operations_total",
			Help:      "Record store operations by table, operation and result.",
		}, []string{"table", "op", "result"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guard",
			Name:      "store_operation_seconds",
			Help:      "Record store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "op"}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "captures_total",
			Help:      "Attendance events recorded by action and location source.",
		}, []string{"action", "location_source"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(c.StoreOps, c.StoreLatency, c.Captures, c.RateLimited)
	}
	return c
}

// Nop returns unregistered collectors, for callers that do not export metrics.
func Nop() *Collectors {
	return New(nil)
}
