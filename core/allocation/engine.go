package allocation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/fleet"
	"github.com/kilianp07/busalloc/core/logger"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/monitoring"
	"github.com/kilianp07/busalloc/core/oracle"
	"github.com/kilianp07/busalloc/core/requests"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

// Engine is the reallocation scheduler. Construct it once and share it.
type Engine struct {
	cfg       Config
	store     requests.Store
	decisions decisionlog.Store
	fleet     fleet.Registry
	ranker    oracle.Ranker
	bus       *eventbus.Bus[events.Event]
	log       logger.Logger
	monitor   monitoring.Monitor
	now       func() time.Time

	mu       sync.RWMutex
	tunables Tunables

	// passMu serializes batch passes.
	passMu sync.Mutex

	lifeMu       sync.Mutex
	root         context.Context
	rootCancel   context.CancelFunc
	closed       bool
	active       bool
	batchCancel  context.CancelFunc
	batchDone    chan struct{}
	expiryCancel context.CancelFunc
	expiryDone   chan struct{}
}

// NewEngine validates cfg and builds an engine. No goroutine is started until
// Start or StartAutonomous is called. A nil store or decision log falls back
// to the in-memory implementation; bus may be nil.
func NewEngine(cfg Config, store requests.Store, decisions decisionlog.Store, registry fleet.Registry, ranker oracle.Ranker, bus *eventbus.Bus[events.Event], log logger.Logger) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("fleet registry is required")
	}
	if ranker == nil {
		return nil, fmt.Errorf("ranker is required")
	}
	if store == nil {
		store = requests.NewMemoryStore()
	}
	if decisions == nil {
		decisions = decisionlog.NewMemoryStore()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		store:      store,
		decisions:  decisions,
		fleet:      registry,
		ranker:     ranker,
		bus:        bus,
		log:        logger.OrNop(log),
		monitor:    monitoring.Current(),
		now:        time.Now,
		tunables:   cfg.Tunables(),
		root:       root,
		rootCancel: cancel,
	}, nil
}

// SetMonitor configures where unexpected group failures are reported.
func (e *Engine) SetMonitor(m monitoring.Monitor) {
	if m != nil {
		e.monitor = m
	}
}

// SetClock replaces the time source. It must be called before the engine is
// used concurrently.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Config returns the static configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Submit validates r, stores it as pending and returns its id. Processing
// happens on the next batch pass, never synchronously.
func (e *Engine) Submit(r model.ReallocationRequest) (string, error) {
	r.StopID = strings.TrimSpace(r.StopID)
	r.StopName = strings.TrimSpace(r.StopName)
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	p, err := model.ParsePriority(string(r.Priority))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Priority = p
	r.ID = newID("REQ")
	r.CreatedAt = e.now()
	r.Status = model.RequestPending
	r.BusID, r.RouteID = "", ""
	if err := e.store.Insert(r); err != nil {
		return "", err
	}
	e.log.Infow("request submitted", map[string]any{
		"request_id": r.ID,
		"stop_id":    r.StopID,
		"wait_min":   r.AverageWaitMinutes,
		"queue":      r.QueueEstimate,
		"buses":      r.BusesAllocated,
	})
	e.publish(events.RequestSubmitted{Request: r})
	return r.ID, nil
}

// ActiveRequests returns requests that are pending or processing.
func (e *Engine) ActiveRequests() []model.ReallocationRequest {
	return e.store.List(requests.Filter{Statuses: []model.RequestStatus{model.RequestPending, model.RequestProcessing}})
}

// Request returns a stored request.
func (e *Engine) Request(id string) (model.ReallocationRequest, bool) {
	return e.store.Get(id)
}

// Tunables returns the current runtime settings.
func (e *Engine) Tunables() Tunables {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tunables
}

// SetAllocationLimitK sets K. Values below 1 are rejected.
func (e *Engine) SetAllocationLimitK(k int) error {
	_, err := e.UpdateConfig(ConfigUpdate{AllocationLimitK: &k})
	return err
}

// SetRequestExpiryMinutes sets the expiry. Values below 1 are rejected.
func (e *Engine) SetRequestExpiryMinutes(m int) error {
	_, err := e.UpdateConfig(ConfigUpdate{RequestExpiryMinutes: &m})
	return err
}

// SetProcessingThreshold sets the threshold. Values below 1 are rejected.
func (e *Engine) SetProcessingThreshold(n int) error {
	_, err := e.UpdateConfig(ConfigUpdate{ProcessingThreshold: &n})
	return err
}

// UpdateConfig applies u atomically: when any field is invalid nothing
// changes. The effective tunables are returned either way.
func (e *Engine) UpdateConfig(u ConfigUpdate) (Tunables, error) {
	e.mu.Lock()
	next := u.Apply(e.tunables)
	if err := next.Validate(); err != nil {
		cur := e.tunables
		e.mu.Unlock()
		return cur, err
	}
	changed := next != e.tunables
	e.tunables = next
	e.mu.Unlock()
	if changed {
		e.log.Infof("configuration updated: K=%d expiry=%dmin threshold=%d",
			next.AllocationLimitK, next.RequestExpiryMinutes, next.ProcessingThreshold)
		e.publish(events.ConfigChanged{
			AllocationLimitK:     next.AllocationLimitK,
			RequestExpiryMinutes: next.RequestExpiryMinutes,
			ProcessingThreshold:  next.ProcessingThreshold,
		})
	}
	return next, nil
}

// Status is a snapshot of the engine for dashboards.
type Status struct {
	Active               bool    `json:"isActive"`
	ActiveRequests       int     `json:"activeRequests"`
	PendingRequests      int     `json:"pendingRequests"`
	PendingManualReviews int     `json:"pendingManualReviews"`
	CompletedToday       int     `json:"completedToday"`
	AllocationLimitK     int     `json:"allocationLimitK"`
	RequestExpiryMinutes int     `json:"requestExpiryMinutes"`
	ProcessingThreshold  int     `json:"processingThreshold"`
	MeanWaitMinutes      float64 `json:"meanWaitMinutes"`
}

// Status reports the current state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	t := e.Tunables()
	active := e.ActiveRequests()
	st := Status{
		Active:               e.AutonomousActive(),
		ActiveRequests:       len(active),
		AllocationLimitK:     t.AllocationLimitK,
		RequestExpiryMinutes: t.RequestExpiryMinutes,
		ProcessingThreshold:  t.ProcessingThreshold,
	}
	if len(active) > 0 {
		waits := make([]float64, len(active))
		for i, r := range active {
			waits[i] = r.AverageWaitMinutes
			if r.Status == model.RequestPending {
				st.PendingRequests++
			}
		}
		st.MeanWaitMinutes = stat.Mean(waits, nil)
	}
	review, err := e.DecisionsNeedingReview(ctx)
	if err != nil {
		return st, err
	}
	st.PendingManualReviews = len(review)

	now := e.now()
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	done, err := e.decisions.Query(ctx, decisionlog.Query{
		Status: model.DecisionCompleted,
		Start:  dayStart,
		End:    dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		return st, err
	}
	st.CompletedToday = len(done)
	return st, nil
}

// Decisions returns every decision, most recent first.
func (e *Engine) Decisions(ctx context.Context) ([]model.Decision, error) {
	return e.decisions.Query(ctx, decisionlog.Query{})
}

// DecisionsNeedingReview returns decisions waiting for staff: oracle
// failures and auto-approved verdicts the oracle flagged and that were never
// executed. Most recent first.
func (e *Engine) DecisionsNeedingReview(ctx context.Context) ([]model.Decision, error) {
	out, err := e.decisions.Query(ctx, decisionlog.Query{Status: model.DecisionManualReview})
	if err != nil {
		return nil, err
	}
	flagged, err := e.decisions.Query(ctx, decisionlog.Query{Status: model.DecisionAutoApproved})
	if err != nil {
		return nil, err
	}
	for _, d := range flagged {
		if d.Verdict.NeedsManualIntervention && len(d.Executions) == 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Decision returns one decision.
func (e *Engine) Decision(ctx context.Context, id string) (model.Decision, error) {
	return e.decisions.Get(ctx, id)
}
