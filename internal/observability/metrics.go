// Package observability exposes Prometheus metrics for the upstream API
// clients and the fetch orchestrator.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters shared by the API clients. All methods are
// nil-receiver safe so metrics stay optional in tests.
type Metrics struct {
	apiCalls    prometheus.Counter
	apiErrors   prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	rateLimited prometheus.Counter
	fetchOps    prometheus.Counter
	fetchChunks prometheus.Counter
	fetchSize   prometheus.Histogram
}

// NewMetrics creates and registers the metric set on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		apiCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_api_calls_total",
			Help: "Outbound upstream API calls",
		}),
		apiErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_api_errors_total",
			Help: "Failed upstream API calls",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_response_cache_hits_total",
			Help: "Response cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_response_cache_misses_total",
			Help: "Response cache misses",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_api_rate_limited_total",
			Help: "Upstream 429 responses observed",
		}),
		fetchOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_fetch_operations_total",
			Help: "Completed chunked fetch operations",
		}),
		fetchChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gbif3d_fetch_chunks_total",
			Help: "Pages requested across fetch operations",
		}),
		fetchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gbif3d_fetch_records",
			Help:    "Records gathered per fetch operation",
			Buckets: prometheus.ExponentialBuckets(10, 10, 5),
		}),
	}

	collectors := []prometheus.Collector{
		m.apiCalls, m.apiErrors, m.cacheHits, m.cacheMisses,
		m.rateLimited, m.fetchOps, m.fetchChunks, m.fetchSize,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// APICall records one outbound upstream request.
func (m *Metrics) APICall() {
	if m != nil {
		m.apiCalls.Inc()
	}
}

// APIError records one failed upstream request.
func (m *Metrics) APIError() {
	if m != nil {
		m.apiErrors.Inc()
	}
}

// CacheHit records a response cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss records a response cache miss.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// RateLimited records an upstream 429 response.
func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// FetchCompleted records one finished chunked fetch operation.
func (m *Metrics) FetchCompleted(records, chunks int) {
	if m != nil {
		m.fetchOps.Inc()
		m.fetchChunks.Add(float64(chunks))
		m.fetchSize.Observe(float64(records))
	}
}
