package model

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a reallocation request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// Active reports whether the request is still waiting for or undergoing processing.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestProcessing
}

// Terminal reports whether the request reached a final state.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// Priority is the advisory urgency hint supplied by the submitter.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts s to a Priority. An empty string maps to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// ReallocationRequest is a demand signal asking for more buses at one stop.
// JSON names follow the payload shared with field staff tooling and the
// decision oracle prompt.
type ReallocationRequest struct {
	ID                 string        `json:"id"`
	StopID             string        `json:"fermataId"`
	StopName           string        `json:"fermataName"`
	BusesAllocated     int           `json:"numBusesAllocated"`
	AverageWaitMinutes float64       `json:"averageWaitTimeMinutes"`
	QueueEstimate      int           `json:"estimatedNumPeopleInQueue"`
	Priority           Priority      `json:"priority"`
	CreatedAt          time.Time     `json:"timestamp"`
	Status             RequestStatus `json:"status"`
	BusID              string        `json:"busId,omitempty"`
	RouteID            string        `json:"routeId,omitempty"`
}

// Validate checks the fields supplied by producers.
func (r ReallocationRequest) Validate() error {
	if strings.TrimSpace(r.StopID) == "" {
		return fmt.Errorf("stop id is required")
	}
	if strings.TrimSpace(r.StopName) == "" {
		return fmt.Errorf("stop name is required")
	}
	if r.BusesAllocated < 0 {
		return fmt.Errorf("buses allocated must not be negative")
	}
	if r.AverageWaitMinutes < 0 {
		return fmt.Errorf("average wait must not be negative")
	}
	if r.QueueEstimate < 0 {
		return fmt.Errorf("queue estimate must not be negative")
	}
	return nil
}

// RequestIDs returns the ids of reqs in order.
func RequestIDs(reqs []ReallocationRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}
