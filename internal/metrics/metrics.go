// Package metrics exposes Prometheus collectors for the HTTP layer and the
// business events the services report.
//
// Every method is safe on a nil *Metrics, so services and tests that don't
// care about metrics can simply pass nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atlas"

// Sign-in outcomes.
const (
	SignInLinked      = "linked"       // existing user found by external id
	SignInEmailLinked = "email_linked" // existing user found by email
	SignInCreated     = "created"      // new user
	SignInSyncFailed  = "sync_failed"  // directory write failed, session still issued
	SignInRejected    = "rejected"     // provider profile unusable
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics owns its own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	signIns       *prometheus.CounterVec
	likeMutations *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Completed sign-ins by outcome.",
		}, []string{"outcome"}),
		likeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_mutations_total",
			Help:      "Like and unlike calls by action and outcome.",
		}, []string{"action", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_count_cache_lookups_total",
			Help:      "Like-count cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.signIns,
		m.likeMutations,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request. route should be the
// router pattern ("/api/items/{id}"), never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SignIn counts a sign-in by outcome.
func (m *Metrics) SignIn(outcome string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(outcome).Inc()
}

// LikeMutation counts a like/unlike call. outcome is "ok" or the error kind.
func (m *Metrics) LikeMutation(action, outcome string) {
	if m == nil {
		return
	}
	m.likeMutations.WithLabelValues(action, outcome).Inc()
}

// CacheLookup counts a like-count cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
