// Package metrics exposes the resolver's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

// Registry holds every instrument on its own prometheus.Registry. All
// methods are safe on a nil *Registry.
type Registry struct {
	reg *prometheus.Registry

	Resolutions        *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	Fallbacks          *prometheus.CounterVec
	Challenges         prometheus.Counter
	SkippedLogs        *prometheus.CounterVec
	DirectorySize      *prometheus.GaugeVec
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	JobRuns            *prometheus.CounterVec
	Archived           *prometheus.CounterVec
}

// New builds and registers all instruments plus the Go and process
// collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Committed resolutions by path (on_chain, off_chain) and outcome",
			},
			[]string{"path", "outcome"},
		),

		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Wall time of a resolve request by result",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_fallbacks_total",
				Help:      "Fast-price resolutions that fell back to off-chain by reason",
			},
			[]string{"reason"},
		),

		Challenges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "challenges_total",
				Help:      "Challenges filed against resolved markets",
			},
		),

		SkippedLogs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_skipped_logs_total",
				Help:      "Ledger event logs that could not be decoded by event",
			},
			[]string{"event"},
		),

		DirectorySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "directory_markets",
				Help:      "Markets in the last merged directory by state",
			},
			[]string{"state"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Background job passes by job and result",
			},
			[]string{"job", "result"},
		),

		Archived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archived_records_total",
				Help:      "Records copied to cold storage by kind",
			},
			[]string{"kind"},
		),
	}

	r.reg.MustRegister(
		r.Resolutions,
		r.ResolutionDuration,
		r.Fallbacks,
		r.Challenges,
		r.SkippedLogs,
		r.DirectorySize,
		r.HTTPRequests,
		r.HTTPLatency,
		r.JobRuns,
		r.Archived,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveResolution records a committed resolution.
func (r *Registry) ObserveResolution(onChain bool, outcome string) {
	if r == nil {
		return
	}
	path := "off_chain"
	if onChain {
		path = "on_chain"
	}
	r.Resolutions.WithLabelValues(path, outcome).Inc()
}

// ObserveResolveDuration records the duration of a resolve request; result
// is the error kind or "ok".
func (r *Registry) ObserveResolveDuration(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.ResolutionDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncFallback counts an on-chain attempt that fell back to off-chain.
func (r *Registry) IncFallback(reason string) {
	if r == nil {
		return
	}
	r.Fallbacks.WithLabelValues(reason).Inc()
}

// IncChallenge counts a filed challenge.
func (r *Registry) IncChallenge() {
	if r == nil {
		return
	}
	r.Challenges.Inc()
}

// AddSkippedLogs counts undecodable ledger logs of one event kind.
func (r *Registry) AddSkippedLogs(event string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SkippedLogs.WithLabelValues(event).Add(float64(n))
}

// SetDirectorySize publishes the per-state size of the merged directory.
func (r *Registry) SetDirectorySize(byState map[string]int) {
	if r == nil {
		return
	}
	r.DirectorySize.Reset()
	for state, n := range byState {
		r.DirectorySize.WithLabelValues(state).Set(float64(n))
	}
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveJob counts one background job pass; result is "ok" or "error".
func (r *Registry) ObserveJob(job, result string) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
}

// AddArchived counts records uploaded to cold storage.
func (r *Registry) AddArchived(kind string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.Archived.WithLabelValues(kind).Add(float64(n))
}
