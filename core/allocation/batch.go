package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/monitoring"
	"github.com/kilianp07/busalloc/core/requests"
)

// PassReport summarizes one batch pass.
type PassReport struct {
	Pending   int           `json:"pending"`
	Threshold int           `json:"threshold"`
	Skipped   bool          `json:"skipped"`
	Groups    []GroupReport `json:"groups,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// GroupReport is the outcome of one stop group.
type GroupReport struct {
	StopID     string   `json:"fermataId"`
	RequestIDs []string `json:"requestIds"`
	DecisionID string   `json:"decisionId,omitempty"`
	Escalated  bool     `json:"escalated"`
	Executed   int      `json:"executed"`
	Completed  int      `json:"completed"`
	Failed     int      `json:"failed"`
	Requeued   int      `json:"requeued"`
	Error      string   `json:"error,omitempty"`
}

type stopGroup struct {
	stopID string
	ids    []string
}

// groupByStop partitions reqs by stop in order of first appearance.
func groupByStop(reqs []model.ReallocationRequest) []stopGroup {
	index := map[string]int{}
	var groups []stopGroup
	for _, r := range reqs {
		i, ok := index[r.StopID]
		if !ok {
			i = len(groups)
			index[r.StopID] = i
			groups = append(groups, stopGroup{stopID: r.StopID})
		}
		groups[i].ids = append(groups[i].ids, r.ID)
	}
	return groups
}

// RunBatch runs one batch pass. Only one pass runs at a time; a second caller
// waits for the first. Tunables are read once when the pass starts.
func (e *Engine) RunBatch(ctx context.Context) PassReport {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	start := time.Now()
	t := e.Tunables()
	pending := e.store.List(requests.Filter{Statuses: []model.RequestStatus{model.RequestPending}})
	rep := PassReport{Pending: len(pending), Threshold: t.ProcessingThreshold}
	pendingRequests.Set(float64(len(pending)))

	if len(pending) < t.ProcessingThreshold {
		rep.Skipped = true
		rep.Duration = time.Since(start)
		e.log.Debugf("batch pass skipped: %d pending, threshold %d", len(pending), t.ProcessingThreshold)
		batchPasses.WithLabelValues("skipped").Inc()
		e.publish(events.PassCompleted{Pending: rep.Pending, Threshold: rep.Threshold, Skipped: true, Duration: rep.Duration})
		return rep
	}

	groups := groupByStop(pending)
	e.log.Infof("batch pass: %d pending requests in %d stop group(s)", len(pending), len(groups))
	for _, g := range groups {
		if ctx.Err() != nil {
			e.log.Warnf("batch pass interrupted: %v", ctx.Err())
			break
		}
		rep.Groups = append(rep.Groups, e.processGroup(ctx, g, t))
	}
	rep.Duration = time.Since(start)
	batchPasses.WithLabelValues("processed").Inc()
	e.publish(events.PassCompleted{Pending: rep.Pending, Threshold: rep.Threshold, Groups: len(rep.Groups), Duration: rep.Duration})
	return rep
}

// processGroup handles one stop group. Any panic or unexpected error puts the
// group back to pending.
func (e *Engine) processGroup(ctx context.Context, g stopGroup, t Tunables) (rep GroupReport) {
	rep = GroupReport{StopID: g.stopID, RequestIDs: g.ids}
	defer func() {
		if r := recover(); r != nil {
			err := monitoring.CapturePanic(e.monitor, r, map[string]string{"stop_id": g.stopID, "decision_id": rep.DecisionID})
			rep = e.abortGroup(rep, err)
		}
	}()

	e.store.SetStatus(g.ids, model.RequestProcessing)
	var reqs []model.ReallocationRequest
	for _, id := range g.ids {
		if r, ok := e.store.Get(id); ok && r.Status == model.RequestProcessing {
			reqs = append(reqs, r)
		}
	}
	if len(reqs) == 0 {
		return rep
	}
	rep.RequestIDs = model.RequestIDs(reqs)

	began := time.Now()
	verdict := e.ranker.Rank(ctx, reqs)
	latency := time.Since(began)
	if ctx.Err() != nil {
		return e.abortGroup(rep, fmt.Errorf("pass canceled: %w", ctx.Err()))
	}
	result := "success"
	if verdict.RequiresReview() {
		result = "escalated"
	}
	oracleLatency.WithLabelValues(result).Observe(latency.Seconds())

	dec := e.newDecision(reqs, verdict)
	if err := e.decisions.Append(ctx, dec); err != nil {
		return e.abortGroup(rep, fmt.Errorf("record decision: %w", err))
	}
	rep.DecisionID = dec.ID
	decisionsCreated.WithLabelValues(string(dec.Status)).Inc()
	e.log.Infow("decision recorded", map[string]any{
		"decision_id": dec.ID,
		"stop_id":     g.stopID,
		"status":      dec.Status,
		"requests":    len(reqs),
		"latency_ms":  latency.Milliseconds(),
	})
	e.publish(events.DecisionRecorded{Decision: dec, Latency: latency})

	if verdict.RequiresReview() {
		rep.Escalated = true
		rep.Requeued = e.store.SetStatus(rep.RequestIDs, model.RequestPending)
		e.log.Warnf("stop %s escalated to manual review: %s", g.stopID, verdict.Reasoning)
		e.publish(events.GroupEscalated{StopID: g.stopID, DecisionID: dec.ID, RequestIDs: rep.RequestIDs, Reason: verdict.Reasoning})
		e.publishResolved(rep)
		return rep
	}

	executed, attempted := e.executeRanked(ctx, dec, reqs, verdict, t.AllocationLimitK)
	rep.Executed = len(executed)
	if len(executed) == 0 {
		if _, err := e.decisions.Update(ctx, dec.ID, func(d *model.Decision) error {
			d.Status = model.DecisionFailed
			return nil
		}); err != nil {
			e.log.Errorf("mark decision %s failed: %v", dec.ID, err)
		}
	}
	rep = e.resolve(rep, executed, attempted)
	e.publishResolved(rep)
	return rep
}

func (e *Engine) newDecision(reqs []model.ReallocationRequest, v model.Verdict) model.Decision {
	d := model.Decision{
		ID:         newID("DEC"),
		RequestIDs: model.RequestIDs(reqs),
		Verdict:    v,
		CreatedAt:  e.now(),
		Status:     model.DecisionAutoApproved,
		ExecutedBy: model.ExecutedByAgent,
	}
	if len(reqs) > 0 {
		d.RequestID = reqs[0].ID
		d.StopID = reqs[0].StopID
		for _, r := range reqs[1:] {
			if r.StopID != d.StopID {
				d.StopID = ""
				break
			}
		}
	}
	// a flagged success keeps its auto_approved status but is still escalated
	if !v.Success {
		d.Status = model.DecisionManualReview
		d.ExecutedBy = model.ExecutedByStaff
	}
	return d
}

// resolve applies the configured resolution policy and evicts terminal
// requests of the group.
func (e *Engine) resolve(rep GroupReport, executed, attempted []string) GroupReport {
	done := toSet(executed)
	var others []string
	for _, id := range rep.RequestIDs {
		if !done[id] {
			others = append(others, id)
		}
	}

	switch e.cfg.Resolution {
	case ResolutionRanked:
		if len(executed) == 0 {
			tried := toSet(attempted)
			var failed, back []string
			for _, id := range others {
				if tried[id] {
					failed = append(failed, id)
				} else {
					back = append(back, id)
				}
			}
			e.store.SetStatus(failed, model.RequestFailed)
			rep.Requeued = e.store.SetStatus(back, model.RequestPending)
		} else {
			rep.Requeued = e.store.SetStatus(others, model.RequestPending)
		}
	default:
		if len(executed) > 0 {
			e.store.SetStatus(others, model.RequestCompleted)
		} else {
			e.store.SetStatus(others, model.RequestFailed)
		}
	}

	members := toSet(rep.RequestIDs)
	removed := e.store.RemoveWhere(func(r model.ReallocationRequest) bool {
		return members[r.ID] && r.Status.Terminal()
	})
	for _, r := range removed {
		if r.Status == model.RequestCompleted {
			rep.Completed++
		} else {
			rep.Failed++
		}
	}
	return rep
}

// abortGroup puts every request of the group back to pending after an
// unexpected failure.
func (e *Engine) abortGroup(rep GroupReport, err error) GroupReport {
	rep.Error = err.Error()
	rep.Requeued = e.store.SetStatus(rep.RequestIDs, model.RequestPending)
	groupErrors.Inc()
	e.log.Errorf("stop %s: group processing aborted: %v", rep.StopID, err)
	e.publishResolved(rep)
	return rep
}

func (e *Engine) publishResolved(rep GroupReport) {
	e.publish(events.GroupResolved{
		StopID:     rep.StopID,
		DecisionID: rep.DecisionID,
		Executed:   rep.Executed,
		Completed:  rep.Completed,
		Failed:     rep.Failed,
		Requeued:   rep.Requeued,
	})
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
