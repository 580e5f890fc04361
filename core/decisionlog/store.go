// Package decisionlog records every oracle decision and what happened to it.
// Decisions are appended once and then mutated in place; they are never
// deleted.
package decisionlog

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kilianp07/busalloc/core/model"
)

// ErrNotFound is returned for unknown decision ids.
var ErrNotFound = errors.New("decision not found")

// Query defines filters for retrieving decisions. Zero values match everything.
type Query struct {
	Status model.DecisionStatus
	StopID string
	Start  time.Time
	End    time.Time
}

// Match reports whether d satisfies the query.
func (q Query) Match(d model.Decision) bool {
	if q.Status != "" && d.Status != q.Status {
		return false
	}
	if q.StopID != "" && d.StopID != q.StopID {
		return false
	}
	if !q.Start.IsZero() && d.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && d.CreatedAt.After(q.End) {
		return false
	}
	return true
}

// Store persists decisions and supports querying.
type Store interface {
	Append(ctx context.Context, d model.Decision) error
	Get(ctx context.Context, id string) (model.Decision, error)
	// Update applies fn to the stored decision and persists the result. If fn
	// returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*model.Decision) error) (model.Decision, error)
	// Query returns matching decisions, most recent first.
	Query(ctx context.Context, q Query) ([]model.Decision, error)
	Close() error
}

// newestFirst orders decisions by creation time, latest first. ds must be in
// insertion order; ties keep the later insertion first.
func newestFirst(ds []model.Decision) []model.Decision {
	out := make([]model.Decision, len(ds))
	for i, d := range ds {
		out[len(ds)-1-i] = d
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
