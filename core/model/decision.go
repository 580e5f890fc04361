package model

import "time"

// Verdict is the outcome returned by the decision oracle for one stop group.
type Verdict struct {
	Success                 bool     `json:"success"`
	PrioritizedRequestIDs   []string `json:"prioritizedRequestIds,omitempty"`
	Reasoning               string   `json:"reasoning"`
	NeedsManualIntervention bool     `json:"needsManualIntervention,omitempty"`
}

// RequiresReview reports whether the verdict must be escalated to staff.
func (v Verdict) RequiresReview() bool {
	return !v.Success || v.NeedsManualIntervention
}

// DecisionStatus is the lifecycle state of a decision.
type DecisionStatus string

const (
	DecisionAutoApproved DecisionStatus = "auto_approved"
	DecisionManualReview DecisionStatus = "manual_review"
	DecisionCompleted    DecisionStatus = "completed"
	DecisionFailed       DecisionStatus = "failed"
)

// Executor identifies who carried out a decision.
type Executor string

const (
	ExecutedByAgent Executor = "agent"
	ExecutedByStaff Executor = "staff"
)

// Execution is one bus reassignment performed for a decision.
type Execution struct {
	RequestID   string    `json:"requestId,omitempty"`
	BusID       string    `json:"busId"`
	FromRouteID string    `json:"fromRouteId"`
	ToRouteID   string    `json:"toRouteId"`
	Reason      string    `json:"reason"`
	ExecutedBy  Executor  `json:"executedBy"`
	At          time.Time `json:"at"`
}

// Decision records one oracle invocation for a stop group and what was done
// with it. Decisions are never deleted, only mutated.
type Decision struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"requestId"`
	RequestIDs []string       `json:"requestIds,omitempty"`
	StopID     string         `json:"fermataId,omitempty"`
	Verdict    Verdict        `json:"agentDecision"`
	CreatedAt  time.Time      `json:"timestamp"`
	Status     DecisionStatus `json:"status"`
	ExecutedBy Executor       `json:"executedBy"`
	ReviewedBy string         `json:"reviewedBy,omitempty"`

	BusID       string      `json:"busId,omitempty"`
	FromRouteID string      `json:"fromRouteId,omitempty"`
	ToRouteID   string      `json:"toRouteId,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Executions  []Execution `json:"executions,omitempty"`
}

// ApplyExecution records ex on the decision and marks it completed.
func (d *Decision) ApplyExecution(ex Execution) {
	d.Status = DecisionCompleted
	d.ExecutedBy = ex.ExecutedBy
	d.BusID = ex.BusID
	d.FromRouteID = ex.FromRouteID
	d.ToRouteID = ex.ToRouteID
	d.Reason = ex.Reason
	d.Executions = append(d.Executions, ex)
}
