// Package simulator produces synthetic reallocation requests for demos and
// load tests.
package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/busalloc/core/model"
)

// Stop is a stop the generator can emit requests for.
type Stop struct {
	ID   string
	Name string
}

// DefaultStops are the six demo stops served by the default fleet.
var DefaultStops = []Stop{
	{ID: "F001", Name: "Bole Road Station"},
	{ID: "F002", Name: "Meskel Square"},
	{ID: "F003", Name: "Mexico Square"},
	{ID: "F004", Name: "Piassa Square"},
	{ID: "F005", Name: "CMC Road"},
	{ID: "F006", Name: "Megenagna"},
}

// Generator builds random requests. It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	stops []Stop
}

// NewGenerator returns a generator over stops, or DefaultStops when empty.
// A zero seed uses the current time.
func NewGenerator(seed int64, stops ...Stop) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(stops) == 0 {
		stops = DefaultStops
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), stops: append([]Stop(nil), stops...)}
}

// Generate returns a request for a random stop with 0-2 buses, a 5-24
// minute wait and 10-59 people queued.
func (g *Generator) Generate() model.ReallocationRequest {
	g.mu.Lock()
	stop := g.stops[g.rng.Intn(len(g.stops))]
	buses := g.rng.Intn(3)
	wait := 5 + g.rng.Intn(20)
	queue := 10 + g.rng.Intn(50)
	g.mu.Unlock()

	return model.ReallocationRequest{
		StopID:             stop.ID,
		StopName:           stop.Name,
		BusesAllocated:     buses,
		AverageWaitMinutes: float64(wait),
		QueueEstimate:      queue,
		Priority:           PriorityFor(float64(wait), queue),
	}
}

// PriorityFor derives the advisory priority of a simulated request.
func PriorityFor(wait float64, queue int) model.Priority {
	switch {
	case wait > 15 || queue > 40:
		return model.PriorityHigh
	case wait > 10 || queue > 25:
		return model.PriorityNormal
	default:
		return model.PriorityLow
	}
}
