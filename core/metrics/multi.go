package metrics

import "errors"

// MultiSink fans out events to multiple sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordDecision(ev DecisionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDecision(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordReallocation(ev ReallocationEvent) error {
	return fanout(m.Sinks, func(r ReallocationRecorder) error { return r.RecordReallocation(ev) })
}

func (m *MultiSink) RecordExpiry(ev ExpiryEvent) error {
	return fanout(m.Sinks, func(r ExpiryRecorder) error { return r.RecordExpiry(ev) })
}

func (m *MultiSink) RecordPass(ev PassEvent) error {
	return fanout(m.Sinks, func(r PassRecorder) error { return r.RecordPass(ev) })
}

func (m *MultiSink) RecordReview(ev ReviewEvent) error {
	return fanout(m.Sinks, func(r ReviewRecorder) error { return r.RecordReview(ev) })
}

// fanout calls fn on every sink implementing R.
func fanout[R any](sinks []MetricsSink, fn func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			errs = append(errs, fn(r))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
