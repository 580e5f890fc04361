package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/fleet"
	"github.com/kilianp07/busalloc/core/model"
)

// ErrNotFound is returned for unknown decision ids.
var ErrNotFound = decisionlog.ErrNotFound

const autonomousReasonPrefix = "Autonomous reallocation based on agent decision: "

// executeRanked moves buses for the first k ranked requests. It returns the
// ids that received a bus and the ids that were attempted.
func (e *Engine) executeRanked(ctx context.Context, dec model.Decision, reqs []model.ReallocationRequest, v model.Verdict, k int) (executed, attempted []string) {
	byID := make(map[string]model.ReallocationRequest, len(reqs))
	for _, r := range reqs {
		byID[r.ID] = r
	}
	// a repeated id counts once towards k
	seen := make(map[string]bool, k)
	top := make([]string, 0, k)
	for _, id := range v.PrioritizedRequestIDs {
		if len(top) == k {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		top = append(top, id)
	}
	for _, id := range top {
		req, ok := byID[id]
		if !ok {
			e.log.Warnf("decision %s ranks unknown request %s", dec.ID, id)
			continue
		}
		attempted = append(attempted, id)
		bus, ok := e.fleet.FindAvailableBus(req.StopID)
		if !ok {
			e.log.Warnf("no bus available for stop %s (request %s)", req.StopID, id)
			continue
		}
		route, ok := e.fleet.RouteForStop(req.StopID)
		if !ok {
			e.log.Warnf("no route serves stop %s (request %s)", req.StopID, id)
			continue
		}
		ex := model.Execution{
			RequestID:   id,
			BusID:       bus.ID,
			FromRouteID: bus.RouteID,
			ToRouteID:   route.ID,
			Reason:      autonomousReasonPrefix + v.Reasoning,
			ExecutedBy:  model.ExecutedByAgent,
			At:          e.now(),
		}
		if _, err := e.decisions.Update(ctx, dec.ID, func(d *model.Decision) error {
			d.ApplyExecution(ex)
			return nil
		}); err != nil {
			e.log.Errorf("record execution of decision %s: %v", dec.ID, err)
			continue
		}
		if _, _, err := e.fleet.Reassign(bus.ID, route.ID, req.StopID); err != nil {
			e.log.Errorf("reassign bus %s: %v", bus.ID, err)
			continue
		}
		e.store.Update(id, func(r *model.ReallocationRequest) {
			r.Status = model.RequestCompleted
			r.BusID = bus.ID
			r.RouteID = route.ID
		})
		executed = append(executed, id)
		reallocations.WithLabelValues(string(model.ExecutedByAgent)).Inc()
		e.log.Infof("bus %s reallocated from route %s to %s for stop %s", bus.ID, bus.RouteID, route.ID, req.StopID)
		e.publish(events.BusReallocated{
			DecisionID:  dec.ID,
			RequestID:   id,
			StopID:      req.StopID,
			BusID:       bus.ID,
			FromRouteID: bus.RouteID,
			ToRouteID:   route.ID,
			Reason:      ex.Reason,
			ExecutedBy:  string(ex.ExecutedBy),
			At:          ex.At,
		})
	}
	e.log.Infof("decision %s: reallocated %d of %d top request(s) (K=%d)", dec.ID, len(executed), len(top), k)
	return executed, attempted
}

// ManualExecution is a reallocation ordered by staff for a decision.
type ManualExecution struct {
	DecisionID  string `json:"decisionId"`
	BusID       string `json:"busId"`
	FromRouteID string `json:"fromRouteId"`
	ToRouteID   string `json:"toRouteId"`
	Reason      string `json:"reason"`
}

func (m ManualExecution) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"decisionId":  m.DecisionID,
		"busId":       m.BusID,
		"fromRouteId": m.FromRouteID,
		"toRouteId":   m.ToRouteID,
		"reason":      m.Reason,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// ExecuteReallocation records a staff ordered reallocation on a decision and
// marks it completed. When the bus and destination route are known to the
// fleet registry the bus is moved and BusReallocated is published. Unknown
// decisions yield ErrNotFound.
func (e *Engine) ExecuteReallocation(ctx context.Context, m ManualExecution) (model.Decision, error) {
	if err := m.validate(); err != nil {
		return model.Decision{}, err
	}
	ex := model.Execution{
		BusID:       m.BusID,
		FromRouteID: m.FromRouteID,
		ToRouteID:   m.ToRouteID,
		Reason:      m.Reason,
		ExecutedBy:  model.ExecutedByStaff,
		At:          e.now(),
	}
	dec, err := e.decisions.Update(ctx, m.DecisionID, func(d *model.Decision) error {
		d.ApplyExecution(ex)
		return nil
	})
	if err != nil {
		return model.Decision{}, err
	}
	reallocations.WithLabelValues(string(model.ExecutedByStaff)).Inc()
	if _, _, err := e.fleet.Reassign(m.BusID, m.ToRouteID, dec.StopID); err != nil {
		if errors.Is(err, fleet.ErrBusNotFound) || errors.Is(err, fleet.ErrRouteNotFound) {
			e.log.Warnf("decision %s executed without fleet change: %v", dec.ID, err)
		} else {
			e.log.Errorf("decision %s: reassign bus %s: %v", dec.ID, m.BusID, err)
		}
		// no bus moved, so no order goes out
		return dec, nil
	}
	e.log.Infof("decision %s executed by staff: bus %s %s -> %s", dec.ID, m.BusID, m.FromRouteID, m.ToRouteID)
	e.publish(events.BusReallocated{
		DecisionID:  dec.ID,
		StopID:      dec.StopID,
		BusID:       m.BusID,
		FromRouteID: m.FromRouteID,
		ToRouteID:   m.ToRouteID,
		Reason:      m.Reason,
		ExecutedBy:  string(model.ExecutedByStaff),
		At:          ex.At,
	})
	return dec, nil
}

// MarkReviewed records a staff verdict: approved decisions become completed,
// rejected ones failed. The requests of the group are not touched; they were
// returned to pending when the decision was escalated.
func (e *Engine) MarkReviewed(ctx context.Context, decisionID string, approved bool, reviewer string) (model.Decision, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return model.Decision{}, fmt.Errorf("%w: reviewer is required", ErrInvalidRequest)
	}
	dec, err := e.decisions.Update(ctx, decisionID, func(d *model.Decision) error {
		if approved {
			d.Status = model.DecisionCompleted
		} else {
			d.Status = model.DecisionFailed
		}
		d.ExecutedBy = model.ExecutedByStaff
		d.ReviewedBy = reviewer
		return nil
	})
	if err != nil {
		return model.Decision{}, err
	}
	e.log.Infof("decision %s marked %s by %s", dec.ID, dec.Status, reviewer)
	e.publish(events.DecisionReviewed{Decision: dec, Approved: approved, Reviewer: reviewer})
	return dec, nil
}

// Decide ranks an explicit set of requests and records the decision without
// executing it or touching the request store. It reports whether staff must
// review the decision.
func (e *Engine) Decide(ctx context.Context, reqs []model.ReallocationRequest) (model.Decision, bool, error) {
	if len(reqs) == 0 {
		return model.Decision{}, false, fmt.Errorf("%w: no requests", ErrInvalidRequest)
	}
	reqs = append([]model.ReallocationRequest(nil), reqs...)
	for i, r := range reqs {
		if err := r.Validate(); err != nil {
			return model.Decision{}, false, fmt.Errorf("%w: request %d: %v", ErrInvalidRequest, i, err)
		}
		if r.ID == "" {
			reqs[i].ID = newID("REQ")
		}
	}
	v := e.ranker.Rank(ctx, reqs)
	dec := e.newDecision(reqs, v)
	if err := e.decisions.Append(ctx, dec); err != nil {
		return model.Decision{}, false, err
	}
	decisionsCreated.WithLabelValues(string(dec.Status)).Inc()
	e.publish(events.DecisionRecorded{Decision: dec})
	return dec, v.RequiresReview(), nil
}
