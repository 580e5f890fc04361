package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/busalloc/core/model"
)

var (
	// ErrBusNotFound is returned when a bus id is unknown.
	ErrBusNotFound = errors.New("bus not found")
	// ErrRouteNotFound is returned when a route id is unknown.
	ErrRouteNotFound = errors.New("route not found")
)

// Registry exposes the fleet state used by the allocation engine.
type Registry interface {
	Routes() []model.Route
	Buses() []model.Bus
	Bus(id string) (model.Bus, bool)
	// RouteForStop returns the first route whose stops include stopID.
	RouteForStop(stopID string) (model.Route, bool)
	// FindAvailableBus picks the bus to send to stopID, if any. In-service
	// buses are candidates when nothing is available.
	FindAvailableBus(stopID string) (model.Bus, bool)
	// Reassign moves a bus onto routeID at stopID and puts it in service. It
	// returns the bus as it was before and after the move.
	Reassign(busID, routeID, stopID string) (before, after model.Bus, err error)
}

// MemoryRegistry is a Registry held in memory. Slice order of the seed is
// kept and used to break ties.
type MemoryRegistry struct {
	mu     sync.RWMutex
	routes []model.Route
	buses  []model.Bus
}

// NewMemoryRegistry validates seed and builds a registry from it.
func NewMemoryRegistry(seed Seed) (*MemoryRegistry, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	r := &MemoryRegistry{}
	for _, rt := range seed.Routes {
		rt.StopIDs = append([]string(nil), rt.StopIDs...)
		rt.BusIDs = append([]string(nil), rt.BusIDs...)
		r.routes = append(r.routes, rt)
	}
	r.buses = append(r.buses, seed.Buses...)
	for i := range r.buses {
		if rt, ok := r.route(r.buses[i].RouteID); ok && r.buses[i].RouteName == "" {
			r.buses[i].RouteName = rt.Name
		}
	}
	return r, nil
}

// NewDefaultRegistry returns a registry populated with DefaultSeed.
func NewDefaultRegistry() *MemoryRegistry {
	r, err := NewMemoryRegistry(DefaultSeed())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *MemoryRegistry) Routes() []model.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Route, len(r.routes))
	for i, rt := range r.routes {
		rt.StopIDs = append([]string(nil), rt.StopIDs...)
		rt.BusIDs = append([]string(nil), rt.BusIDs...)
		out[i] = rt
	}
	return out
}

func (r *MemoryRegistry) Buses() []model.Bus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Bus(nil), r.buses...)
}

func (r *MemoryRegistry) Bus(id string) (model.Bus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.busIndex(id)
	if i < 0 {
		return model.Bus{}, false
	}
	return r.buses[i], true
}

func (r *MemoryRegistry) RouteForStop(stopID string) (model.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routeForStop(stopID)
}

// FindAvailableBus walks the fallback chain:
//  1. an available bus already at the stop
//  2. an available bus on the route serving the stop
//  3. any available bus
//  4. the least loaded in-service bus on the serving route
//  5. the least loaded in-service bus anywhere
func (r *MemoryRegistry) FindAvailableBus(stopID string) (model.Bus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, hasTarget := r.routeForStop(stopID)

	available := func(b model.Bus) bool { return b.Status == model.BusAvailable }
	if b, ok := r.first(func(b model.Bus) bool { return available(b) && b.StopID == stopID }); ok {
		return b, true
	}
	if hasTarget {
		if b, ok := r.first(func(b model.Bus) bool { return available(b) && b.RouteID == target.ID }); ok {
			return b, true
		}
	}
	if b, ok := r.first(available); ok {
		return b, true
	}
	inService := func(b model.Bus) bool { return b.Status == model.BusInService }
	if hasTarget {
		if b, ok := r.leastLoaded(func(b model.Bus) bool { return inService(b) && b.RouteID == target.ID }); ok {
			return b, true
		}
	}
	return r.leastLoaded(inService)
}

func (r *MemoryRegistry) Reassign(busID, routeID, stopID string) (model.Bus, model.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.busIndex(busID)
	if i < 0 {
		return model.Bus{}, model.Bus{}, fmt.Errorf("%s: %w", busID, ErrBusNotFound)
	}
	to, ok := r.route(routeID)
	if !ok {
		return model.Bus{}, model.Bus{}, fmt.Errorf("%s: %w", routeID, ErrRouteNotFound)
	}
	before := r.buses[i]
	if before.RouteID != routeID {
		for j := range r.routes {
			if r.routes[j].ID == before.RouteID {
				r.routes[j].BusIDs = remove(r.routes[j].BusIDs, busID)
			}
			if r.routes[j].ID == routeID {
				r.routes[j].BusIDs = append(r.routes[j].BusIDs, busID)
			}
		}
	}
	after := before
	after.RouteID = to.ID
	after.RouteName = to.Name
	after.StopID = stopID
	after.Status = model.BusInService
	r.buses[i] = after
	return before, after, nil
}

func (r *MemoryRegistry) first(pred func(model.Bus) bool) (model.Bus, bool) {
	for _, b := range r.buses {
		if pred(b) {
			return b, true
		}
	}
	return model.Bus{}, false
}

func (r *MemoryRegistry) leastLoaded(pred func(model.Bus) bool) (model.Bus, bool) {
	var cands []model.Bus
	for _, b := range r.buses {
		if pred(b) {
			cands = append(cands, b)
		}
	}
	if len(cands) == 0 {
		return model.Bus{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].CurrentPassengers < cands[j].CurrentPassengers })
	return cands[0], true
}

func (r *MemoryRegistry) routeForStop(stopID string) (model.Route, bool) {
	for _, rt := range r.routes {
		if rt.Serves(stopID) {
			return rt, true
		}
	}
	return model.Route{}, false
}

func (r *MemoryRegistry) route(id string) (model.Route, bool) {
	for _, rt := range r.routes {
		if rt.ID == id {
			return rt, true
		}
	}
	return model.Route{}, false
}

func (r *MemoryRegistry) busIndex(id string) int {
	for i, b := range r.buses {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
