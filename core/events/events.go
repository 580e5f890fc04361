package events

import (
	"time"

	"github.com/kilianp07/busalloc/core/model"
)

// Event is anything published by the engine.
type Event interface {
	Kind() string
}

// RequestSubmitted is published after intake stored a new request.
type RequestSubmitted struct {
	Request model.ReallocationRequest `json:"request"`
}

func (RequestSubmitted) Kind() string { return "request_submitted" }

// RequestsExpired is published when an expiry sweep removed pending requests.
type RequestsExpired struct {
	RequestIDs []string  `json:"requestIds"`
	Cutoff     time.Time `json:"cutoff"`
}

func (RequestsExpired) Kind() string { return "requests_expired" }

// DecisionRecorded is published when a new oracle decision enters the log.
type DecisionRecorded struct {
	Decision model.Decision `json:"decision"`
	Latency  time.Duration  `json:"latency"`
}

func (DecisionRecorded) Kind() string { return "decision_recorded" }

// GroupEscalated is published when a stop group is handed to manual review.
type GroupEscalated struct {
	StopID     string   `json:"fermataId"`
	DecisionID string   `json:"decisionId,omitempty"`
	RequestIDs []string `json:"requestIds"`
	Reason     string   `json:"reason"`
}

func (GroupEscalated) Kind() string { return "group_escalated" }

// BusReallocated is published for every bus moved to a new route.
type BusReallocated struct {
	DecisionID  string    `json:"decisionId"`
	RequestID   string    `json:"requestId"`
	StopID      string    `json:"fermataId"`
	BusID       string    `json:"busId"`
	FromRouteID string    `json:"fromRouteId"`
	ToRouteID   string    `json:"toRouteId"`
	Reason      string    `json:"reason"`
	ExecutedBy  string    `json:"executedBy"`
	At          time.Time `json:"at"`
}

func (BusReallocated) Kind() string { return "bus_reallocated" }

// GroupResolved is published once a stop group leaves the processing state.
type GroupResolved struct {
	StopID     string `json:"fermataId"`
	DecisionID string `json:"decisionId,omitempty"`
	Executed   int    `json:"executed"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Requeued   int    `json:"requeued"`
}

func (GroupResolved) Kind() string { return "group_resolved" }

// PassCompleted is published at the end of every batch pass.
type PassCompleted struct {
	Pending   int           `json:"pending"`
	Threshold int           `json:"threshold"`
	Skipped   bool          `json:"skipped"`
	Groups    int           `json:"groups"`
	Duration  time.Duration `json:"duration"`
}

func (PassCompleted) Kind() string { return "pass_completed" }

// DecisionReviewed is published when staff approve or reject a decision.
type DecisionReviewed struct {
	Decision model.Decision `json:"decision"`
	Approved bool           `json:"approved"`
	Reviewer string         `json:"reviewer"`
}

func (DecisionReviewed) Kind() string { return "decision_reviewed" }

// AutonomousModeChanged is published when autonomous mode starts or stops.
type AutonomousModeChanged struct {
	Active bool `json:"active"`
}

func (AutonomousModeChanged) Kind() string { return "autonomous_mode_changed" }

// ConfigChanged is published after the tunables were updated.
type ConfigChanged struct {
	AllocationLimitK     int `json:"allocationLimitK"`
	RequestExpiryMinutes int `json:"requestExpiryMinutes"`
	ProcessingThreshold  int `json:"processingThreshold"`
}

func (ConfigChanged) Kind() string { return "config_changed" }
