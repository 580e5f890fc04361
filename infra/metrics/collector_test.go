package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/core/events"
	coremetrics "github.com/kilianp07/busalloc/core/metrics"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

type memorySink struct {
	mu            sync.Mutex
	decisions     []coremetrics.DecisionEvent
	reallocations []coremetrics.ReallocationEvent
	expiries      []coremetrics.ExpiryEvent
	passes        []coremetrics.PassEvent
	reviews       []coremetrics.ReviewEvent
}

func (m *memorySink) RecordDecision(ev coremetrics.DecisionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, ev)
	return nil
}

func (m *memorySink) RecordReallocation(ev coremetrics.ReallocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reallocations = append(m.reallocations, ev)
	return nil
}

func (m *memorySink) RecordExpiry(ev coremetrics.ExpiryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiries = append(m.expiries, ev)
	return nil
}

func (m *memorySink) RecordPass(ev coremetrics.PassEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, ev)
	return nil
}

func (m *memorySink) RecordReview(ev coremetrics.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, ev)
	return nil
}

func (m *memorySink) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decisions) + len(m.reallocations) + len(m.expiries) + len(m.passes) + len(m.reviews)
}

func TestEventCollectorMapsEvents(t *testing.T) {
	bus := eventbus.New[events.Event]()
	sink := &memorySink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink)

	dec := model.Decision{ID: "DEC-1", StopID: "F001", RequestIDs: []string{"a", "b"}, Status: model.DecisionAutoApproved, Verdict: model.Verdict{Success: true}}
	bus.Publish(events.DecisionRecorded{Decision: dec, Latency: time.Second})
	bus.Publish(events.BusReallocated{DecisionID: "DEC-1", StopID: "F001", BusID: "B003", ToRouteID: "R001", ExecutedBy: "agent"})
	bus.Publish(events.RequestsExpired{RequestIDs: []string{"x", "y", "z"}})
	bus.Publish(events.PassCompleted{Pending: 5, Groups: 1})
	bus.Publish(events.DecisionReviewed{Decision: dec, Approved: true, Reviewer: "op"})
	bus.Publish(events.AutonomousModeChanged{Active: true})

	require.Eventually(t, func() bool { return sink.total() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 2, sink.decisions[0].Requests)
	assert.True(t, sink.decisions[0].Success)
	assert.Equal(t, "B003", sink.reallocations[0].BusID)
	assert.Equal(t, 3, sink.expiries[0].Count)
	assert.Equal(t, 1, sink.passes[0].Groups)
	assert.Equal(t, "op", sink.reviews[0].Reviewer)
}

func TestEventCollectorDecisionOnlySink(t *testing.T) {
	bus := eventbus.New[events.Event]()
	var got []coremetrics.DecisionEvent
	var mu sync.Mutex
	sink := decisionOnly(func(ev coremetrics.DecisionEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	done := StartEventCollector(context.Background(), bus, sink)
	bus.Publish(events.BusReallocated{BusID: "B001"})
	bus.Publish(events.DecisionRecorded{Decision: model.Decision{ID: "DEC-2"}})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	bus.Close()
	<-done
	assert.Equal(t, "DEC-2", got[0].DecisionID)
}

type decisionOnly func(coremetrics.DecisionEvent)

func (f decisionOnly) RecordDecision(ev coremetrics.DecisionEvent) error {
	f(ev)
	return nil
}

func TestEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
	select {
	case <-done:
	default:
		t.Fatal("collector should exit immediately without a bus")
	}
}
