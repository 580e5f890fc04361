package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/busalloc/core/events"
	coremqtt "github.com/kilianp07/busalloc/core/mqtt"
	"github.com/kilianp07/busalloc/infra/logger"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

// ForwarderConfig tunes the forwarder.
type ForwarderConfig struct {
	// AckTimeout bounds the wait for a bus acknowledgment. Zero skips waiting.
	AckTimeout time.Duration
	// Kinds restricts which event kinds are mirrored. Empty mirrors all.
	Kinds []string
}

// Forwarder mirrors engine events to MQTT and turns every bus reallocation
// into a reassignment order.
type Forwarder struct {
	client coremqtt.Client
	cfg    ForwarderConfig
	kinds  map[string]bool
	log    logger.Logger
}

// NewForwarder returns a forwarder publishing through client.
func NewForwarder(client coremqtt.Client, cfg ForwarderConfig) *Forwarder {
	f := &Forwarder{client: client, cfg: cfg, log: logger.New("mqtt_forwarder")}
	if len(cfg.Kinds) > 0 {
		f.kinds = make(map[string]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			f.kinds[k] = true
		}
	}
	return f
}

// Start subscribes to bus until ctx is canceled or the bus closes. The
// returned channel is closed when the forwarder exited.
func (f *Forwarder) Start(ctx context.Context, bus *eventbus.Bus[events.Event]) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				f.Handle(ev)
			}
		}
	}()
	return done
}

// Handle forwards one event. Failures are logged and never returned.
func (f *Forwarder) Handle(ev events.Event) {
	if r, ok := ev.(events.BusReallocated); ok {
		f.sendOrder(r)
	}
	if f.kinds != nil && !f.kinds[ev.Kind()] {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		f.log.Errorf("encode %s event: %v", ev.Kind(), err)
		return
	}
	if err := f.client.PublishEvent(ev.Kind(), payload); err != nil {
		f.log.Warnf("publish %s event: %v", ev.Kind(), err)
	}
}

func (f *Forwarder) sendOrder(r events.BusReallocated) {
	cmdID, err := f.client.SendOrder(coremqtt.ReassignmentOrder{
		DecisionID:  r.DecisionID,
		RequestID:   r.RequestID,
		BusID:       r.BusID,
		FromRouteID: r.FromRouteID,
		ToRouteID:   r.ToRouteID,
		StopID:      r.StopID,
		Reason:      r.Reason,
		IssuedAt:    r.At,
	})
	if err != nil {
		f.log.Errorf("order for bus %s (decision %s) not sent: %v", r.BusID, r.DecisionID, err)
		return
	}
	if f.cfg.AckTimeout <= 0 {
		return
	}
	go func() {
		ok, err := f.client.WaitForAck(cmdID, f.cfg.AckTimeout)
		if err != nil || !ok {
			f.log.Warnf("bus %s did not acknowledge order %s: %v", r.BusID, cmdID, err)
			return
		}
		f.log.Infof("bus %s acknowledged order %s", r.BusID, cmdID)
	}()
}
