package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/busalloc/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher records orders and events in memory. Used in tests and when
// no broker is configured.
type MockPublisher struct {
	Orders     []coremqtt.ReassignmentOrder
	Events     map[string][][]byte
	FailBuses  map[string]bool
	AckResults map[string]bool
	mu         sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Events:     make(map[string][][]byte),
		FailBuses:  make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// SendOrder records the order or returns an error if configured to fail.
func (m *MockPublisher) SendOrder(o coremqtt.ReassignmentOrder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBuses[o.BusID] {
		return "", fmt.Errorf("publish failed")
	}
	if o.CommandID == "" {
		o.CommandID = fmt.Sprintf("cmd-%s-%d", o.BusID, len(m.Orders)+1)
	}
	m.Orders = append(m.Orders, o)
	m.AckResults[o.CommandID] = true
	return o.CommandID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored result.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown command")
	}
	return ok, nil
}

// PublishEvent records the payload under kind.
func (m *MockPublisher) PublishEvent(kind string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[kind] = append(m.Events[kind], append([]byte(nil), payload...))
	return nil
}

// Snapshot returns copies of the recorded orders and the number of events per kind.
func (m *MockPublisher) Snapshot() ([]coremqtt.ReassignmentOrder, map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int, len(m.Events))
	for k, v := range m.Events {
		counts[k] = len(v)
	}
	return append([]coremqtt.ReassignmentOrder(nil), m.Orders...), counts
}
