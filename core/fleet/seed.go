package fleet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/busalloc/core/model"
)

// Seed is the initial fleet layout.
type Seed struct {
	Routes []model.Route `json:"routes" yaml:"routes"`
	Buses  []model.Bus   `json:"buses" yaml:"buses"`
}

// Validate checks ids are unique and buses reference known routes.
func (s Seed) Validate() error {
	routes := map[string]bool{}
	for _, r := range s.Routes {
		if r.ID == "" {
			return fmt.Errorf("route id is required")
		}
		if routes[r.ID] {
			return fmt.Errorf("duplicate route %s", r.ID)
		}
		routes[r.ID] = true
	}
	buses := map[string]bool{}
	for _, b := range s.Buses {
		if b.ID == "" {
			return fmt.Errorf("bus id is required")
		}
		if buses[b.ID] {
			return fmt.Errorf("duplicate bus %s", b.ID)
		}
		buses[b.ID] = true
		if b.RouteID != "" && !routes[b.RouteID] {
			return fmt.Errorf("bus %s references unknown route %s", b.ID, b.RouteID)
		}
		switch b.Status {
		case model.BusAvailable, model.BusInService, model.BusMaintenance:
		default:
			return fmt.Errorf("bus %s has unknown status %q", b.ID, b.Status)
		}
	}
	return nil
}

// DefaultSeed is the demo fleet used when no seed file is configured.
func DefaultSeed() Seed {
	return Seed{
		Routes: []model.Route{
			{ID: "R001", Name: "Bole - Merkato", StopIDs: []string{"F001", "F002", "F003"}, BusIDs: []string{"B001", "B002"}, Priority: 1},
			{ID: "R002", Name: "Piassa - CMC", StopIDs: []string{"F004", "F005", "F006"}, BusIDs: []string{"B003"}, Priority: 2},
		},
		Buses: []model.Bus{
			{ID: "B001", RouteID: "R001", RouteName: "Bole - Merkato", Status: model.BusInService, Capacity: 50, CurrentPassengers: 30, StopID: "F001"},
			{ID: "B002", RouteID: "R001", RouteName: "Bole - Merkato", Status: model.BusInService, Capacity: 50, CurrentPassengers: 45, StopID: "F002"},
			{ID: "B003", RouteID: "R002", RouteName: "Piassa - CMC", Status: model.BusAvailable, Capacity: 40},
		},
	}
}

// LoadSeed loads a Seed from a JSON or YAML file.
func LoadSeed(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodeSeed(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// DecodeSeed reads from r to decode a Seed.
func DecodeSeed(r io.Reader, format string) (Seed, error) {
	var s Seed
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("unsupported format: %s", format)
	}
	return s, nil
}
