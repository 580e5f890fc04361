package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchPasses      *prometheus.CounterVec
	oracleLatency    *prometheus.HistogramVec
	decisionsCreated *prometheus.CounterVec
	reallocations    *prometheus.CounterVec
	requestsExpired  prometheus.Counter
	pendingRequests  prometheus.Gauge
	groupErrors      prometheus.Counter
)

type collectors struct {
	passes    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	decisions *prometheus.CounterVec
	realloc   *prometheus.CounterVec
	expired   prometheus.Counter
	pending   prometheus.Gauge
	errors    prometheus.Counter
}

// newCollectors creates new metric collectors.
func newCollectors() collectors {
	return collectors{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busalloc_batch_passes_total",
			Help: "Number of batch passes by outcome",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busalloc_oracle_latency_seconds",
			Help:    "Time spent waiting for the oracle verdict of a stop group",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busalloc_decisions_total",
			Help: "Decisions recorded by initial status",
		}, []string{"status"}),
		realloc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busalloc_reallocations_total",
			Help: "Buses moved to a new route",
		}, []string{"executed_by"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busalloc_requests_expired_total",
			Help: "Pending requests removed by the expiry sweep",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busalloc_pending_requests",
			Help: "Pending requests seen at the start of the last batch pass",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busalloc_group_errors_total",
			Help: "Stop groups aborted by an unexpected error",
		}),
	}
}

func (c collectors) assign() {
	batchPasses, oracleLatency, decisionsCreated, reallocations = c.passes, c.latency, c.decisions, c.realloc
	requestsExpired, pendingRequests, groupErrors = c.expired, c.pending, c.errors
}

func init() {
	newCollectors().assign()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(batchPasses, oracleLatency, decisionsCreated, reallocations, requestsExpired, pendingRequests, groupErrors)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors().assign()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
