package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for health check results.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Registry holds the monitor's Prometheus collectors on a private registry.
type Registry struct {
	registry *prometheus.Registry

	HealthCheckOutcomes *prometheus.CounterVec
	HealthCheckDuration *prometheus.HistogramVec
	HealthPassDuration  prometheus.Histogram
	RefreshJobs         *prometheus.CounterVec
	WatchlistMutations  *prometheus.CounterVec
	ArchivePurged       prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// NewRegistry creates the collectors and registers them with Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		HealthCheckOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_health_check_outcomes_total",
				Help: "Per-ticker health check outcomes by failing stage",
			},
			[]string{"outcome", "stage"},
		),

		HealthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchlist_health_check_duration_seconds",
				Help:    "Duration of one ticker's health check",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),

		HealthPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "watchlist_health_pass_duration_seconds",
				Help:    "Duration of a full health check pass",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		RefreshJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_refresh_jobs_total",
				Help: "Refresh jobs by trigger and final status",
			},
			[]string{"trigger", "status"},
		),

		WatchlistMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchlist_mutations_total",
				Help: "Client mutations by kind and result",
			},
			[]string{"mutation", "result"},
		),

		ArchivePurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchlist_archive_purged_total",
				Help: "Expired archive rows physically deleted",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HealthCheckOutcomes,
		r.HealthCheckDuration,
		r.HealthPassDuration,
		r.RefreshJobs,
		r.WatchlistMutations,
		r.ArchivePurged,
		r.HTTPRequests,
		r.HTTPDuration,
	)
	return r
}

// RecordHealthCheck counts one ticker outcome. stage is empty unless a stage failed.
func (r *Registry) RecordHealthCheck(outcome, stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.HealthCheckOutcomes.WithLabelValues(outcome, stage).Inc()
	r.HealthCheckDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordPass observes the duration of a full pass.
func (r *Registry) RecordPass(d time.Duration) {
	if r == nil {
		return
	}
	r.HealthPassDuration.Observe(d.Seconds())
}

// RecordRefreshJob counts a finished refresh job.
func (r *Registry) RecordRefreshJob(trigger, status string) {
	if r == nil {
		return
	}
	r.RefreshJobs.WithLabelValues(trigger, status).Inc()
}

// RecordMutation counts a client mutation.
func (r *Registry) RecordMutation(mutation string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.WatchlistMutations.WithLabelValues(mutation, result).Inc()
}

// RecordPurge counts purged archive rows.
func (r *Registry) RecordPurge(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.ArchivePurged.Add(float64(n))
}

// RecordHTTPRequest counts a request against its route template.
func (r *Registry) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Register adds extra collectors, such as cache gauges.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// CacheCounters exposes a cache's hit and miss counters as Prometheus counters.
func CacheCounters(cache string, hits, misses func() float64) []prometheus.Collector {
	labels := prometheus.Labels{"cache": cache}
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "cache_hits_total",
			Help:        "Cache hits",
			ConstLabels: labels,
		}, hits),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "cache_misses_total",
			Help:        "Cache misses",
			ConstLabels: labels,
		}, misses),
	}
}
