package metrics

import "time"

// DecisionEvent describes one oracle decision for a stop group.
type DecisionEvent struct {
	DecisionID string
	StopID     string
	Status     string
	Success    bool
	Requests   int
	Latency    time.Duration
	Time       time.Time
}

// MetricsSink records decisions for observability purposes.
type MetricsSink interface {
	RecordDecision(ev DecisionEvent) error
}

// ReallocationEvent describes a bus moved to serve a stop.
type ReallocationEvent struct {
	DecisionID  string
	RequestID   string
	StopID      string
	BusID       string
	FromRouteID string
	ToRouteID   string
	ExecutedBy  string
	Time        time.Time
}

// ReallocationRecorder records bus reassignments.
type ReallocationRecorder interface {
	RecordReallocation(ev ReallocationEvent) error
}

// ExpiryEvent counts requests evicted by the expiry sweep.
type ExpiryEvent struct {
	Count int
	Time  time.Time
}

// ExpiryRecorder records expiry sweeps that removed requests.
type ExpiryRecorder interface {
	RecordExpiry(ev ExpiryEvent) error
}

// PassEvent summarizes a batch pass.
type PassEvent struct {
	Pending  int
	Groups   int
	Skipped  bool
	Duration time.Duration
	Time     time.Time
}

// PassRecorder records batch passes.
type PassRecorder interface {
	RecordPass(ev PassEvent) error
}

// ReviewEvent is a staff verdict on a decision.
type ReviewEvent struct {
	DecisionID string
	Approved   bool
	Reviewer   string
	Time       time.Time
}

// ReviewRecorder records manual reviews.
type ReviewRecorder interface {
	RecordReview(ev ReviewEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionEvent) error         { return nil }
func (NopSink) RecordReallocation(ReallocationEvent) error { return nil }
func (NopSink) RecordExpiry(ExpiryEvent) error             { return nil }
func (NopSink) RecordPass(PassEvent) error                 { return nil }
func (NopSink) RecordReview(ReviewEvent) error             { return nil }
