package oracle

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/busalloc/core/model"
)

// RuleRanker ranks requests locally: unserved requests first, then longer
// wait, then longer queue. Ties keep submission order.
type RuleRanker struct{}

func (RuleRanker) Rank(_ context.Context, reqs []model.ReallocationRequest) model.Verdict {
	if err := CheckSameStop(reqs); err != nil {
		return Failure(err.Error())
	}
	sorted := append([]model.ReallocationRequest(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if (a.BusesAllocated == 0) != (b.BusesAllocated == 0) {
			return a.BusesAllocated == 0
		}
		if a.AverageWaitMinutes != b.AverageWaitMinutes {
			return a.AverageWaitMinutes > b.AverageWaitMinutes
		}
		return a.QueueEstimate > b.QueueEstimate
	})
	top := sorted[0]
	return model.Verdict{
		Success:               true,
		PrioritizedRequestIDs: model.RequestIDs(sorted),
		Reasoning: fmt.Sprintf("Ranked %d request(s) at %s by unallocated buses, wait time and queue length; top request %s waits %.0f min with %d people queued.",
			len(sorted), top.StopID, top.ID, top.AverageWaitMinutes, top.QueueEstimate),
	}
}
