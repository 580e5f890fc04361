// Package scenarios replays YAML descriptions of request traffic against the
// allocation engine and checks the resulting decisions, fleet moves and
// published reassignment orders.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/model"
)

type RequestDef struct {
	Stop     string  `yaml:"stop"`
	Name     string  `yaml:"name"`
	Buses    int     `yaml:"buses"`
	Wait     float64 `yaml:"wait"`
	Queue    int     `yaml:"queue"`
	Priority string  `yaml:"priority,omitempty"`
}

func (r RequestDef) ToModel() model.ReallocationRequest {
	name := r.Name
	if name == "" {
		name = "Stop " + r.Stop
	}
	return model.ReallocationRequest{
		StopID:             r.Stop,
		StopName:           name,
		BusesAllocated:     r.Buses,
		AverageWaitMinutes: r.Wait,
		QueueEstimate:      r.Queue,
		Priority:           model.Priority(r.Priority),
	}
}

// Step is one action. Exactly one field should be set.
type Step struct {
	Submit         []RequestDef `yaml:"submit,omitempty"`
	AdvanceMinutes int          `yaml:"advance_minutes,omitempty"`
	Batch          bool         `yaml:"batch,omitempty"`
	Expire         bool         `yaml:"expire,omitempty"`
}

type EngineDef struct {
	AllocationLimitK     int    `yaml:"allocation_limit_k"`
	ProcessingThreshold  int    `yaml:"processing_threshold"`
	RequestExpiryMinutes int    `yaml:"request_expiry_minutes"`
	Resolution           string `yaml:"resolution"`
}

// Config returns the engine settings, defaults filling the blanks.
func (e EngineDef) Config() allocation.Config {
	cfg := allocation.DefaultConfig()
	if e.AllocationLimitK != 0 {
		cfg.AllocationLimitK = e.AllocationLimitK
	}
	if e.ProcessingThreshold != 0 {
		cfg.ProcessingThreshold = e.ProcessingThreshold
	}
	if e.RequestExpiryMinutes != 0 {
		cfg.RequestExpiryMinutes = e.RequestExpiryMinutes
	}
	if e.Resolution != "" {
		cfg.Resolution = allocation.Resolution(e.Resolution)
	}
	return cfg
}

// Expected describes the end state. Decisions counts decisions per status.
type Expected struct {
	Decisions      map[string]int    `yaml:"decisions"`
	ActiveRequests int               `yaml:"active_requests"`
	Orders         int               `yaml:"orders"`
	BusRoutes      map[string]string `yaml:"bus_routes,omitempty"`
}

// Scenario is one replayable case. Oracle is "rule" (default) or "fail".
// FailBuses makes the order publisher reject orders for those buses.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Engine      EngineDef `yaml:"engine"`
	Oracle      string    `yaml:"oracle,omitempty"`
	FailBuses   []string  `yaml:"fail_buses,omitempty"`
	Steps       []Step    `yaml:"steps"`
	Expected    Expected  `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	switch sc.Oracle {
	case "", "rule", "fail":
	default:
		return nil, fmt.Errorf("%s: unknown oracle %q", path, sc.Oracle)
	}
	return &sc, nil
}
