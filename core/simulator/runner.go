package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/busalloc/core/logger"
	"github.com/kilianp07/busalloc/core/model"
)

// MinFrequency is the shortest interval between two simulated requests.
const MinFrequency = time.Second

// Intake accepts requests. The allocation engine and the HTTP client used by
// the simulate command both implement it.
type Intake interface {
	Submit(r model.ReallocationRequest) (string, error)
}

// Runner submits generated requests at a fixed frequency.
type Runner struct {
	gen    *Generator
	intake Intake
	freq   time.Duration
	log    logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	sent   int
}

// NewRunner returns a stopped runner. Frequencies below MinFrequency are
// rejected.
func NewRunner(gen *Generator, intake Intake, freq time.Duration, log logger.Logger) (*Runner, error) {
	if gen == nil || intake == nil {
		return nil, fmt.Errorf("generator and intake are required")
	}
	if freq < MinFrequency {
		return nil, fmt.Errorf("frequency %s is below %s", freq, MinFrequency)
	}
	return &Runner{gen: gen, intake: intake, freq: freq, log: logger.OrNop(log)}, nil
}

// Start begins submitting requests until Stop is called or ctx is done. It
// returns false when the runner is already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.freq)
		defer ticker.Stop()
		for {
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
				if _, err := r.submit(); err != nil {
					r.log.Warnf("simulated request rejected: %v", err)
				}
			}
		}
	}()
	r.log.Infof("simulation started (one request every %s)", r.freq)
	return true
}

// Stop halts the runner and waits for it. It returns false when it was not
// running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	r.log.Infof("simulation stopped after %d request(s)", r.Sent())
	return true
}

// Running reports whether the runner is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Sent returns how many requests were accepted so far.
func (r *Runner) Sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Bulk submits n requests immediately and returns the accepted ids. It stops
// at the first error.
func (r *Runner) Bulk(n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := r.submit()
		if err != nil {
			return ids, fmt.Errorf("request %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Runner) submit() (string, error) {
	req := r.gen.Generate()
	id, err := r.intake.Submit(req)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
	r.log.Debugw("simulated request", map[string]any{"request_id": id, "stop_id": req.StopID, "priority": req.Priority})
	return id, nil
}
