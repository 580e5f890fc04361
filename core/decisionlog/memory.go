package decisionlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/busalloc/core/model"
)

// MemoryStore keeps decisions in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string]model.Decision
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Decision{}}
}

func (s *MemoryStore) Append(_ context.Context, d model.Decision) error {
	if d.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[d.ID]; ok {
		return fmt.Errorf("decision %s already exists", d.ID)
	}
	s.data[d.ID] = cloneDecision(d)
	s.order = append(s.order, d.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[id]
	if !ok {
		return model.Decision{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return cloneDecision(d), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.Decision) error) (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[id]
	if !ok {
		return model.Decision{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	d := cloneDecision(cur)
	if err := fn(&d); err != nil {
		return model.Decision{}, err
	}
	d.ID = id
	s.data[id] = d
	return cloneDecision(d), nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Decision
	for _, id := range s.order {
		if d := s.data[id]; q.Match(d) {
			res = append(res, cloneDecision(d))
		}
	}
	return newestFirst(res), nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneDecision(d model.Decision) model.Decision {
	d.RequestIDs = append([]string(nil), d.RequestIDs...)
	d.Verdict.PrioritizedRequestIDs = append([]string(nil), d.Verdict.PrioritizedRequestIDs...)
	d.Executions = append([]model.Execution(nil), d.Executions...)
	return d
}
