package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Store and sweep latency buckets in milliseconds
	latencyBuckets = []float64{
		0.5, 1, 2.5, 5, 10, 25,
		50, 100, 250, 500,
		1000, 5000, 30000,
	}

	AdmissionDecisionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_admission_decisions_total",
			Help: "Admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	ClientsBlockedTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_clients_blocked_total",
			Help: "Number of block transitions",
		},
	)

	StoreErrorsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_store_errors_total",
			Help: "Failed rate-limit store calls by operation",
		},
		[]string{"operation"},
	)

	StoreLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_store_latency_ms",
			Help:    "Rate-limit store call latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"operation"},
	)

	SweepDeletedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_sweep_deleted_total",
			Help: "Records removed by the expiry sweep",
		},
		[]string{"job"},
	)

	SweepRunsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_sweep_runs_total",
			Help: "Sweep runs by job and result",
		},
		[]string{"job", "result"},
	)

	SweepDuration = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_sweep_duration_ms",
			Help:    "Sweep run duration in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"job"},
	)

	HTTPRequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"route", "method", "status"},
	)
)

const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeBlocked    = "blocked"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"

	SweepResultOK      = "ok"
	SweepResultError   = "error"
	SweepResultSkipped = "skipped"
)

var initOnce sync.Once

func Initialize() {
	initOnce.Do(func() {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		prometheus.DefaultRegisterer = registry
		prometheus.DefaultGatherer = registry
	})
}

// Gatherer exposes the private registry to the metrics endpoint.
func Gatherer() prometheus.Gatherer {
	return registry
}
