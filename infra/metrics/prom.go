package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/busalloc/core/metrics"
)

// PromSink records per stop metrics fed by the event collector. Engine wide
// counters live in core/allocation.
type PromSink struct {
	decisions     *prometheus.CounterVec
	groupSize     prometheus.Histogram
	reallocations *prometheus.CounterVec
	expired       prometheus.Histogram
	passDuration  prometheus.Histogram
	reviews       *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.decisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "busalloc_stop_decisions_total",
		Help: "Oracle decisions per stop and initial status",
	}, []string{"stop_id", "status"})); err != nil {
		return nil, err
	}
	if s.groupSize, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "busalloc_decision_group_size",
		Help:    "Number of requests ranked in one decision",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})); err != nil {
		return nil, err
	}
	if s.reallocations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "busalloc_stop_reallocations_total",
		Help: "Buses sent to a stop by destination route and executor",
	}, []string{"stop_id", "to_route_id", "executed_by"})); err != nil {
		return nil, err
	}
	if s.expired, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "busalloc_expiry_sweep_removed",
		Help:    "Requests removed per expiry sweep that removed at least one",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})); err != nil {
		return nil, err
	}
	if s.passDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "busalloc_batch_pass_duration_seconds",
		Help:    "Wall time of processed batch passes",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.reviews, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "busalloc_reviews_total",
		Help: "Staff reviews by outcome",
	}, []string{"approved"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (s *PromSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	s.decisions.WithLabelValues(ev.StopID, ev.Status).Inc()
	s.groupSize.Observe(float64(ev.Requests))
	return nil
}

func (s *PromSink) RecordReallocation(ev coremetrics.ReallocationEvent) error {
	s.reallocations.WithLabelValues(ev.StopID, ev.ToRouteID, ev.ExecutedBy).Inc()
	return nil
}

func (s *PromSink) RecordExpiry(ev coremetrics.ExpiryEvent) error {
	s.expired.Observe(float64(ev.Count))
	return nil
}

// RecordPass observes processed passes only; skipped passes are counted by
// the engine.
func (s *PromSink) RecordPass(ev coremetrics.PassEvent) error {
	if !ev.Skipped {
		s.passDuration.Observe(ev.Duration.Seconds())
	}
	return nil
}

func (s *PromSink) RecordReview(ev coremetrics.ReviewEvent) error {
	s.reviews.WithLabelValues(strconv.FormatBool(ev.Approved)).Inc()
	return nil
}
