package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/busalloc/core/mqtt"
	"github.com/kilianp07/busalloc/infra/logger"
)

// BusAckTopic is where busID acknowledges orders.
func BusAckTopic(prefix, busID string) string {
	return fmt.Sprintf("%s/bus/%s/ack", prefix, busID)
}

// AckStrategy decides whether and when a bus acknowledges an order.
type AckStrategy interface {
	Ack(ctx context.Context, publish func())
}

// AutoAck acknowledges every order after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, publish func()) {
	if !sleepCtx(ctx, a.Delay) {
		return
	}
	publish()
}

// RandomAck drops acknowledgments with the configured probability and
// waits for Delay before sending the rest.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck returns a RandomAck seeded with seed.
func NewRandomAck(delay time.Duration, dropRate float64, seed int64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

// Ack implements AckStrategy.
func (r *RandomAck) Ack(ctx context.Context, publish func()) {
	if r.DropRate > 0 && r.roll() < r.DropRate {
		return
	}
	if !sleepCtx(ctx, r.Delay) {
		return
	}
	publish()
}

func (r *RandomAck) roll() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r.rng.Float64()
}

// sleepCtx waits for d and reports whether the wait completed. A zero delay
// never waits, so an order received before Close is still acknowledged.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// BusAgent plays the bus side of the order protocol: it listens on the
// command topics and answers each order according to its AckStrategy.
// It stands in for on-board units during simulations and tests.
type BusAgent struct {
	cli      pahoClient
	prefix   string
	busID    string
	strategy AckStrategy
	logger   logger.Logger

	mu       sync.Mutex
	received []coremqtt.ReassignmentOrder
	onOrder  func(coremqtt.ReassignmentOrder)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// BusAgentOption customizes a BusAgent.
type BusAgentOption func(*BusAgent)

// WithBusID restricts the agent to orders for a single bus.
func WithBusID(id string) BusAgentOption {
	return func(a *BusAgent) { a.busID = id }
}

// WithOrderHook registers fn to be called for every decoded order.
func WithOrderHook(fn func(coremqtt.ReassignmentOrder)) BusAgentOption {
	return func(a *BusAgent) { a.onOrder = fn }
}

// NewBusAgent connects to the broker described by cfg and subscribes to the
// command topic. A nil strategy acknowledges immediately.
func NewBusAgent(cfg Config, strategy AckStrategy, opts ...BusAgentOption) (*BusAgent, error) {
	if strategy == nil {
		strategy = AutoAck{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &BusAgent{
		prefix:   cfg.prefix(),
		busID:    "+",
		strategy: strategy,
		logger:   logger.New("bus_agent"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(a)
	}

	popts, err := NewClientOptions(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	popts.OnConnect = func(c paho.Client) {
		topic := CommandTopic(a.prefix, a.busID)
		if token := c.Subscribe(topic, 1, a.onCommand); token.Wait() && token.Error() != nil {
			a.logger.Errorf("subscribe %s: %v", topic, token.Error())
			return
		}
		a.logger.Infof("bus agent listening on %s", topic)
	}
	c := newMQTTClient(popts)
	a.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		cancel()
		return nil, token.Error()
	}
	return a, nil
}

func (a *BusAgent) onCommand(_ paho.Client, msg paho.Message) {
	a.handle(msg.Payload())
}

func (a *BusAgent) handle(payload []byte) {
	var o coremqtt.ReassignmentOrder
	if err := json.Unmarshal(payload, &o); err != nil {
		a.logger.Errorf("decode order: %v", err)
		return
	}
	if o.CommandID == "" || o.BusID == "" {
		a.logger.Warnf("order without command or bus id dropped")
		return
	}
	a.mu.Lock()
	a.received = append(a.received, o)
	hook := a.onOrder
	a.mu.Unlock()
	if hook != nil {
		hook(o)
	}
	a.logger.Infow("order received", map[string]any{"bus_id": o.BusID, "command_id": o.CommandID, "to_route_id": o.ToRouteID})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.strategy.Ack(a.ctx, func() { a.publishAck(o) })
	}()
}

func (a *BusAgent) publishAck(o coremqtt.ReassignmentOrder) {
	payload, err := json.Marshal(struct {
		CommandID string `json:"command_id"`
	}{CommandID: o.CommandID})
	if err != nil {
		a.logger.Errorf("marshal ack: %v", err)
		return
	}
	token := a.cli.Publish(BusAckTopic(a.prefix, o.BusID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		a.logger.Warnf("ack publish timeout for %s", o.BusID)
		return
	}
	if err := token.Error(); err != nil {
		a.logger.Errorf("publish ack for %s: %v", o.BusID, err)
	}
}

// Orders returns a copy of the orders received so far.
func (a *BusAgent) Orders() []coremqtt.ReassignmentOrder {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]coremqtt.ReassignmentOrder, len(a.received))
	copy(out, a.received)
	return out
}

// Close cancels pending acknowledgments and disconnects from the broker.
func (a *BusAgent) Close() {
	a.cancel()
	a.wg.Wait()
	if a.cli != nil && a.cli.IsConnected() {
		a.cli.Disconnect(250)
	}
}
