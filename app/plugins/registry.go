// Package plugins selects the decision log backend and the ranker from
// configuration.
package plugins

import (
	"fmt"
	"time"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/factory"
	"github.com/kilianp07/busalloc/core/logger"
	"github.com/kilianp07/busalloc/core/oracle"
)

// RankerOptions carries engine settings every ranker may need.
type RankerOptions struct {
	Timeout time.Duration
	Log     logger.Logger
}

// RankerFactory builds a ranker from a raw configuration map.
type RankerFactory func(conf map[string]any, opts RankerOptions) (oracle.Ranker, error)

var (
	DecisionLogs = factory.NewRegistry[decisionlog.Store]()
	Rankers      = map[string]RankerFactory{}
)

func RegisterDecisionLog(name string, f factory.Factory[decisionlog.Store]) error {
	return DecisionLogs.Register(name, f)
}

func RegisterRanker(name string, f RankerFactory) { Rankers[name] = f }

// NewDecisionLog builds the configured decision log.
func NewDecisionLog(mc factory.ModuleConfig) (decisionlog.Store, error) {
	s, err := DecisionLogs.Create(mc)
	if err != nil {
		return nil, fmt.Errorf("decision log: %w", err)
	}
	return s, nil
}

// NewRanker builds the configured ranker.
func NewRanker(mc factory.ModuleConfig, opts RankerOptions) (oracle.Ranker, error) {
	f, ok := Rankers[mc.Type]
	if !ok {
		return nil, fmt.Errorf("ranker: unknown module type %q", mc.Type)
	}
	r, err := f(mc.Conf, opts)
	if err != nil {
		return nil, fmt.Errorf("ranker %s: %w", mc.Type, err)
	}
	return r, nil
}
