package allocation

import (
	"context"
	"time"

	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/model"
)

// ExpireRequests removes pending requests created at or before now minus the
// expiry window and returns how many were removed. Processing requests are
// never removed.
func (e *Engine) ExpireRequests() int {
	minutes := e.Tunables().RequestExpiryMinutes
	cutoff := e.now().Add(-time.Duration(minutes) * time.Minute)
	removed := e.store.RemoveWhere(func(r model.ReallocationRequest) bool {
		return r.Status == model.RequestPending && !r.CreatedAt.After(cutoff)
	})
	if len(removed) == 0 {
		return 0
	}
	requestsExpired.Add(float64(len(removed)))
	e.log.Infof("expired %d pending request(s) older than %d minutes", len(removed), minutes)
	e.publish(events.RequestsExpired{RequestIDs: model.RequestIDs(removed), Cutoff: cutoff})
	return len(removed)
}

// Start launches the expiry sweep. It runs until ctx is canceled or Close is
// called. Autonomous mode is started too when configured.
func (e *Engine) Start(ctx context.Context) {
	e.lifeMu.Lock()
	if e.closed || e.expiryCancel != nil {
		e.lifeMu.Unlock()
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.expiryCancel, e.expiryDone = cancel, done
	e.lifeMu.Unlock()

	interval := time.Duration(e.cfg.ExpiryIntervalSeconds) * time.Second
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
				e.ExpireRequests()
			}
		}
	}()
	e.log.Infof("expiry sweep started (every %s, expiry %d minutes)", interval, e.Tunables().RequestExpiryMinutes)

	if e.cfg.Autonomous {
		e.StartAutonomous()
	}
}

// StartAutonomous enables autonomous mode: one batch pass runs immediately and
// then every batch interval. It returns false when the mode was already on.
func (e *Engine) StartAutonomous() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.closed {
		return false
	}
	if e.active {
		e.log.Infof("autonomous mode already active")
		return false
	}
	ctx, cancel := context.WithCancel(e.root)
	done := make(chan struct{})
	e.active, e.batchCancel, e.batchDone = true, cancel, done

	interval := time.Duration(e.cfg.BatchIntervalSeconds) * time.Second
	go func() {
		defer close(done)
		e.RunBatch(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.RunBatch(ctx)
			}
		}
	}()
	e.log.Infof("autonomous mode started (batch every %s)", interval)
	e.publish(events.AutonomousModeChanged{Active: true})
	return true
}

// StopAutonomous disables autonomous mode and waits for the batch loop to
// exit. It returns false when the mode was already off.
func (e *Engine) StopAutonomous() bool {
	e.lifeMu.Lock()
	if !e.active {
		e.lifeMu.Unlock()
		e.log.Infof("autonomous mode not active")
		return false
	}
	cancel, done := e.batchCancel, e.batchDone
	e.active, e.batchCancel, e.batchDone = false, nil, nil
	e.lifeMu.Unlock()

	cancel()
	<-done
	e.log.Infof("autonomous mode stopped")
	e.publish(events.AutonomousModeChanged{Active: false})
	return true
}

// AutonomousActive reports whether autonomous mode is on.
func (e *Engine) AutonomousActive() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.active
}

// Close cancels both scheduled tasks and waits for them to return. The
// engine cannot be restarted afterwards.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	if e.closed {
		e.lifeMu.Unlock()
		return nil
	}
	e.closed = true
	e.active = false
	e.rootCancel()
	if e.expiryCancel != nil {
		e.expiryCancel()
	}
	waits := []chan struct{}{e.batchDone, e.expiryDone}
	e.lifeMu.Unlock()

	for _, done := range waits {
		if done != nil {
			<-done
		}
	}
	return nil
}
