// Package oracle ranks the reallocation requests of one stop.
//
// The engine only depends on Ranker. Client adapts any text Generator (a
// chat-completion model) into a Ranker and never lets a transport or parse
// failure escape: it is turned into a verdict that asks for staff review.
// RuleRanker applies the same ranking policy locally.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/busalloc/core/model"
)

// Synthetic reasoning used when no usable answer was obtained.
const (
	ReasonTechnicalError = "Technical error occurred during agent processing. Manual intervention required."
	ReasonUnparsable     = "Agent response could not be parsed. Manual intervention required."
)

// Ranker orders the requests of a single stop group.
type Ranker interface {
	Rank(ctx context.Context, reqs []model.ReallocationRequest) model.Verdict
}

// RankerFunc adapts a function to Ranker.
type RankerFunc func(ctx context.Context, reqs []model.ReallocationRequest) model.Verdict

func (f RankerFunc) Rank(ctx context.Context, reqs []model.ReallocationRequest) model.Verdict {
	return f(ctx, reqs)
}

// Generator produces a text completion for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Failure builds a verdict that routes the group to manual review.
func Failure(reason string) model.Verdict {
	return model.Verdict{Success: false, Reasoning: reason, NeedsManualIntervention: true}
}

// CheckSameStop returns an error when reqs is empty or spans several stops.
func CheckSameStop(reqs []model.ReallocationRequest) error {
	if len(reqs) == 0 {
		return fmt.Errorf("no requests to prioritize")
	}
	seen := map[string]bool{}
	var stops []string
	for _, r := range reqs {
		if !seen[r.StopID] {
			seen[r.StopID] = true
			stops = append(stops, r.StopID)
		}
	}
	if len(stops) > 1 {
		sort.Strings(stops)
		return fmt.Errorf("requests target different stops (%s); a batch must share one stop", strings.Join(stops, ", "))
	}
	return nil
}

// normalize enforces the verdict contract against the submitted batch.
func normalize(v model.Verdict, reqs []model.ReallocationRequest) model.Verdict {
	if !v.Success {
		v.NeedsManualIntervention = true
		v.PrioritizedRequestIDs = nil
		return v
	}
	known := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		known[r.ID] = true
	}
	ids := make([]string, 0, len(v.PrioritizedRequestIDs))
	for _, id := range v.PrioritizedRequestIDs {
		if known[id] {
			ids = append(ids, id)
			delete(known, id)
		}
	}
	v.PrioritizedRequestIDs = ids
	return v
}
