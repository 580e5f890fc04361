package scenarios

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/fleet"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/oracle"
	"github.com/kilianp07/busalloc/core/requests"
	"github.com/kilianp07/busalloc/infra/logger"
	"github.com/kilianp07/busalloc/infra/mqtt"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	var ranker oracle.Ranker = oracle.RuleRanker{}
	if sc.Oracle == "fail" {
		ranker = oracle.RankerFunc(func(context.Context, []model.ReallocationRequest) model.Verdict {
			return oracle.Failure("Technical error occurred during agent processing. Manual intervention required.")
		})
	}

	pub := mqtt.NewMockPublisher()
	for _, id := range sc.FailBuses {
		pub.FailBuses[id] = true
	}
	bus := eventbus.NewWithBuffer[events.Event](1024)
	fwd := mqtt.NewForwarder(pub, mqtt.ForwarderConfig{Kinds: []string{"bus_reallocated"}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fwdDone := fwd.Start(ctx, bus)

	registry := fleet.NewDefaultRegistry()
	decisions := decisionlog.NewMemoryStore()
	engine, err := allocation.NewEngine(sc.Engine.Config(), requests.NewMemoryStore(), decisions, registry, ranker, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	clk := &clock{now: time.Date(2025, 5, 12, 8, 0, 0, 0, time.UTC)}
	engine.SetClock(clk.Now)

	for i, st := range sc.Steps {
		for _, r := range st.Submit {
			if _, err := engine.Submit(r.ToModel()); err != nil {
				t.Fatalf("step %d: submit: %v", i, err)
			}
		}
		if st.AdvanceMinutes > 0 {
			clk.advance(time.Duration(st.AdvanceMinutes) * time.Minute)
		}
		if st.Expire {
			engine.ExpireRequests()
		}
		if st.Batch {
			engine.RunBatch(ctx)
		}
	}

	active := len(engine.ActiveRequests())
	all, err := engine.Decisions(ctx)
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}
	_ = engine.Close()
	bus.Close()
	<-fwdDone

	byStatus := map[string]int{}
	for _, d := range all {
		byStatus[string(d.Status)]++
	}
	for status, want := range sc.Expected.Decisions {
		if got := byStatus[status]; got != want {
			t.Errorf("scenario %s: expected %d %s decisions, got %d", sc.Name, want, status, got)
		}
	}
	if active != sc.Expected.ActiveRequests {
		t.Errorf("scenario %s: expected %d active requests, got %d", sc.Name, sc.Expected.ActiveRequests, active)
	}
	orders, _ := pub.Snapshot()
	if len(orders) != sc.Expected.Orders {
		t.Errorf("scenario %s: expected %d orders, got %d", sc.Name, sc.Expected.Orders, len(orders))
	}
	for busID, route := range sc.Expected.BusRoutes {
		b, ok := registry.Bus(busID)
		if !ok {
			t.Errorf("scenario %s: unknown bus %s", sc.Name, busID)
			continue
		}
		if b.RouteID != route {
			t.Errorf("scenario %s: bus %s on %s, want %s", sc.Name, busID, b.RouteID, route)
		}
	}
}
