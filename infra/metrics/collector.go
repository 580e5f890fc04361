package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/busalloc/core/events"
	coremetrics "github.com/kilianp07/busalloc/core/metrics"
	"github.com/kilianp07/busalloc/infra/logger"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector exited.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Event) error {
	now := time.Now()
	switch e := ev.(type) {
	case events.DecisionRecorded:
		d := e.Decision
		return sink.RecordDecision(coremetrics.DecisionEvent{
			DecisionID: d.ID,
			StopID:     d.StopID,
			Status:     string(d.Status),
			Success:    d.Verdict.Success,
			Requests:   len(d.RequestIDs),
			Latency:    e.Latency,
			Time:       d.CreatedAt,
		})
	case events.BusReallocated:
		if r, ok := sink.(coremetrics.ReallocationRecorder); ok {
			return r.RecordReallocation(coremetrics.ReallocationEvent{
				DecisionID:  e.DecisionID,
				RequestID:   e.RequestID,
				StopID:      e.StopID,
				BusID:       e.BusID,
				FromRouteID: e.FromRouteID,
				ToRouteID:   e.ToRouteID,
				ExecutedBy:  e.ExecutedBy,
				Time:        e.At,
			})
		}
	case events.RequestsExpired:
		if r, ok := sink.(coremetrics.ExpiryRecorder); ok {
			return r.RecordExpiry(coremetrics.ExpiryEvent{Count: len(e.RequestIDs), Time: now})
		}
	case events.PassCompleted:
		if r, ok := sink.(coremetrics.PassRecorder); ok {
			return r.RecordPass(coremetrics.PassEvent{
				Pending:  e.Pending,
				Groups:   e.Groups,
				Skipped:  e.Skipped,
				Duration: e.Duration,
				Time:     now,
			})
		}
	case events.DecisionReviewed:
		if r, ok := sink.(coremetrics.ReviewRecorder); ok {
			return r.RecordReview(coremetrics.ReviewEvent{
				DecisionID: e.Decision.ID,
				Approved:   e.Approved,
				Reviewer:   e.Reviewer,
				Time:       now,
			})
		}
	}
	return nil
}
