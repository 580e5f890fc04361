package model

// BusStatus is the operational state of a bus.
type BusStatus string

const (
	BusAvailable   BusStatus = "available"
	BusInService   BusStatus = "in_service"
	BusMaintenance BusStatus = "maintenance"
)

// Bus is a vehicle of the fleet.
type Bus struct {
	ID                string    `json:"id" yaml:"id"`
	RouteID           string    `json:"routeId" yaml:"route_id"`
	RouteName         string    `json:"routeName" yaml:"route_name"`
	Status            BusStatus `json:"status" yaml:"status"`
	Capacity          int       `json:"capacity" yaml:"capacity"`
	CurrentPassengers int       `json:"currentPassengers" yaml:"current_passengers"`
	StopID            string    `json:"fermataId,omitempty" yaml:"stop_id"`
}

// Route is an ordered set of stops served by a group of buses.
type Route struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	StopIDs  []string `json:"fermataIds" yaml:"stop_ids"`
	BusIDs   []string `json:"activeBuses" yaml:"bus_ids"`
	Priority int      `json:"priority" yaml:"priority"`
}

// Serves reports whether the route stops at stopID.
func (r Route) Serves(stopID string) bool {
	for _, id := range r.StopIDs {
		if id == stopID {
			return true
		}
	}
	return false
}
