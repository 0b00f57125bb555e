package metrics

import "github.com/prometheus/client_golang/prometheus"

// APIMetrics exposes counters/histograms for billing API calls and the
// store operations built on them.
type APIMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	storeOpsTotal  *prometheus.CounterVec
	unauthorized   prometheus.Counter
	staleDiscarded *prometheus.CounterVec
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total billing API requests by operation and outcome",
		}, []string{"operation", "method", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ace",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of billing API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storeOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store actions by store, action and outcome",
		}, []string{"store", "action", "outcome"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "api",
			Name:      "unauthorized_total",
			Help:      "Responses that expired the session",
		}),
		staleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "listing",
			Name:      "stale_results_total",
			Help:      "List results dropped because a newer request superseded them",
		}, []string{"list"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.storeOpsTotal, m.unauthorized, m.staleDiscarded)
	return m
}

func (m *APIMetrics) ObserveRequest(operation, method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, method, outcome).Inc()
	m.requestLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *APIMetrics) ObserveStoreOp(store, action string, ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.storeOpsTotal.WithLabelValues(store, action, outcome).Inc()
}

func (m *APIMetrics) ObserveUnauthorized() {
	if m == nil {
		return
	}
	m.unauthorized.Inc()
}

func (m *APIMetrics) ObserveStaleResult(list string) {
	if m == nil {
		return
	}
	m.staleDiscarded.WithLabelValues(list).Inc()
}
