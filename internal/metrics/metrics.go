// Package metrics provides Prometheus metrics for the versions service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Timeline metrics
	LookupsMissingTotal *prometheus.CounterVec
	LookupsFailedTotal  *prometheus.CounterVec
	VersionsPerGroup    prometheus.Histogram

	// Diff metrics
	DiffRenderDuration     prometheus.Histogram
	DiffParseFailuresTotal prometheus.Counter
	TokenCapExceededTotal  prometheus.Counter

	// Cache metrics
	GroupCacheTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers all metrics on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposals_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proposals_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.LookupsMissingTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposals_lookups_missing_total",
			Help: "Group items skipped because the referenced record does not exist",
		},
		[]string{"kind"},
	)
	m.LookupsFailedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposals_lookups_failed_total",
			Help: "Group items skipped because reading them failed",
		},
		[]string{"kind"},
	)
	m.VersionsPerGroup = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "proposals_versions_per_group",
		Help:    "Number of versions rebuilt per group",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	m.DiffRenderDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "proposals_diff_render_duration_seconds",
		Help:    "Time spent rendering a structural diff",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.DiffParseFailuresTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "proposals_diff_parse_failures_total",
		Help: "Diff renders that fell back to plain content",
	})
	m.TokenCapExceededTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "proposals_diff_token_cap_exceeded_total",
		Help: "Word diffs whose input exceeded the distinct word cap",
	})

	m.GroupCacheTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposals_group_cache_total",
			Help: "Group cache lookups by result",
		},
		[]string{"result"},
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) LookupMissing(kind string) {
	if m == nil {
		return
	}
	m.LookupsMissingTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) LookupFailed(kind string) {
	if m == nil {
		return
	}
	m.LookupsFailedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveVersions(n int) {
	if m == nil {
		return
	}
	m.VersionsPerGroup.Observe(float64(n))
}

func (m *Metrics) ObserveRender(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.DiffRenderDuration.Observe(d.Seconds())
	if failed {
		m.DiffParseFailuresTotal.Inc()
	}
}

func (m *Metrics) TokenCapExceeded() {
	if m == nil {
		return
	}
	m.TokenCapExceededTotal.Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.GroupCacheTotal.WithLabelValues(result).Inc()
}
