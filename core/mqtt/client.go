// Package mqtt defines how reallocation orders and engine events leave the
// process. Delivery is best effort: the engine never waits on it.
package mqtt

import "time"

// ReassignmentOrder tells a bus to move to a new route.
type ReassignmentOrder struct {
	CommandID   string    `json:"command_id"`
	DecisionID  string    `json:"decision_id"`
	RequestID   string    `json:"request_id,omitempty"`
	BusID       string    `json:"bus_id"`
	FromRouteID string    `json:"from_route_id"`
	ToRouteID   string    `json:"to_route_id"`
	StopID      string    `json:"stop_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Client represents an MQTT client capable of sending reassignment orders to
// buses and publishing engine events.
type Client interface {
	// SendOrder publishes the order on the bus command topic and returns the
	// command identifier used to track the acknowledgment.
	SendOrder(o ReassignmentOrder) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)

	// PublishEvent publishes a JSON payload under the events topic for kind.
	PublishEvent(kind string, payload []byte) error
}
