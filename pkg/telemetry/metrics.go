package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics is
// valid and records nothing, which keeps unit tests free of registries.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	synthesized         *prometheus.CounterVec
	upstreamErrors      *prometheus.CounterVec
	partitionsDropped   prometheus.Counter
	syncQueueDepth      prometheus.Gauge
	notificationsPushed prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all gateway metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navgate_requests_total",
		Help: "Intercepted requests by route class and outcome (live, cache, synthesized, queued).",
	}, []string{"class", "outcome"})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navgate_cache_hits_total",
		Help: "Cache store hits by partition.",
	}, []string{"partition"})

	m.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navgate_cache_misses_total",
		Help: "Cache store misses by route class.",
	}, []string{"class"})

	m.synthesized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navgate_synthesized_responses_total",
		Help: "Responses synthesized because neither network nor cache could serve.",
	}, []string{"class"})

	m.upstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navgate_upstream_errors_total",
		Help: "Transport-level failures reaching an upstream, by host.",
	}, []string{"host"})

	m.partitionsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navgate_partitions_dropped_total",
		Help: "Cache partitions evicted at activation boundaries.",
	})

	m.syncQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navgate_sync_queue_depth",
		Help: "Pending deferred submissions awaiting replay.",
	})

	m.notificationsPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navgate_notifications_pushed_total",
		Help: "Push notifications broadcast to connected clients.",
	})

	m.registry.MustRegister(
		m.requestsTotal, m.cacheHits, m.cacheMisses, m.synthesized,
		m.upstreamErrors, m.partitionsDropped, m.syncQueueDepth, m.notificationsPushed,
	)
	return m
}

// Handler returns the /metrics scrape handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one intercepted request.
func (m *Metrics) RecordRequest(class, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(class, outcome).Inc()
}

// RecordCacheHit counts a cache hit against its partition.
func (m *Metrics) RecordCacheHit(partition string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(partition).Inc()
}

// RecordCacheMiss counts a cache miss for a route class.
func (m *Metrics) RecordCacheMiss(class string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(class).Inc()
}

// RecordSynthesized counts a synthesized error response.
func (m *Metrics) RecordSynthesized(class string) {
	if m == nil {
		return
	}
	m.synthesized.WithLabelValues(class).Inc()
}

// RecordUpstreamError counts a transport failure for a host.
func (m *Metrics) RecordUpstreamError(host string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(host).Inc()
}

// RecordPartitionDrop counts one evicted partition.
func (m *Metrics) RecordPartitionDrop() {
	if m == nil {
		return
	}
	m.partitionsDropped.Inc()
}

// SetSyncQueueDepth publishes the current deferred-submission queue depth.
func (m *Metrics) SetSyncQueueDepth(n int) {
	if m == nil {
		return
	}
	m.syncQueueDepth.Set(float64(n))
}

// RecordNotification counts one broadcast push notification.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notificationsPushed.Inc()
}
