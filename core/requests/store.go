// Package requests holds reallocation requests between intake and the batch
// pass. The Store interface keeps the engine independent of the backing
// storage; MemoryStore is the default.
package requests

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/busalloc/core/model"
)

// Filter selects requests. Zero values match everything.
type Filter struct {
	Statuses      []model.RequestStatus
	StopID        string
	CreatedBefore time.Time
}

// Match reports whether r satisfies the filter.
func (f Filter) Match(r model.ReallocationRequest) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.StopID != "" && r.StopID != f.StopID {
		return false
	}
	if !f.CreatedBefore.IsZero() && !r.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// Store is the repository used by the engine.
type Store interface {
	Insert(r model.ReallocationRequest) error
	Get(id string) (model.ReallocationRequest, bool)
	// List returns matching requests in insertion order.
	List(f Filter) []model.ReallocationRequest
	Count(f Filter) int
	// SetStatus updates every listed request that still exists and returns
	// how many were changed.
	SetStatus(ids []string, st model.RequestStatus) int
	Update(id string, fn func(*model.ReallocationRequest)) bool
	// RemoveWhere deletes requests for which pred returns true and returns them.
	RemoveWhere(pred func(model.ReallocationRequest) bool) []model.ReallocationRequest
}

// MemoryStore keeps requests in memory in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string]model.ReallocationRequest
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.ReallocationRequest{}}
}

func (s *MemoryStore) Insert(r model.ReallocationRequest) error {
	if r.ID == "" {
		return fmt.Errorf("request id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[r.ID]; ok {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	s.data[r.ID] = r
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemoryStore) Get(id string) (model.ReallocationRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	return r, ok
}

func (s *MemoryStore) List(f Filter) []model.ReallocationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.ReallocationRequest, 0, len(s.order))
	for _, id := range s.order {
		if r := s.data[id]; f.Match(r) {
			res = append(res, r)
		}
	}
	return res
}

func (s *MemoryStore) Count(f Filter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.data {
		if f.Match(r) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) SetStatus(ids []string, st model.RequestStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		r, ok := s.data[id]
		if !ok {
			continue
		}
		r.Status = st
		s.data[id] = r
		n++
	}
	return n
}

func (s *MemoryStore) Update(id string, fn func(*model.ReallocationRequest)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	if !ok {
		return false
	}
	fn(&r)
	r.ID = id
	s.data[id] = r
	return true
}

func (s *MemoryStore) RemoveWhere(pred func(model.ReallocationRequest) bool) []model.ReallocationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []model.ReallocationRequest
	kept := s.order[:0]
	for _, id := range s.order {
		r := s.data[id]
		if pred(r) {
			removed = append(removed, r)
			delete(s.data, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
