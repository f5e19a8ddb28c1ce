package syncer

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the auto-sync period when none is configured.
const DefaultInterval = time.Minute

// AutoSync runs a coordinator on a fixed period for each enabled user.
// Overlapping ticks are dropped by the coordinator's guard.
type AutoSync struct {
	c        *Coordinator
	interval time.Duration
	onToggle func(userID string, enabled bool)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewAutoSync creates a scheduler. onToggle, if not nil, is told whenever a
// user's auto-sync flag changes.
func NewAutoSync(c *Coordinator, interval time.Duration, onToggle func(userID string, enabled bool)) *AutoSync {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &AutoSync{
		c:        c,
		interval: interval,
		onToggle: onToggle,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Interval returns the tick period.
func (a *AutoSync) Interval() time.Duration { return a.interval }

// Enable starts the timer for the user. It returns false if it was already
// running.
func (a *AutoSync) Enable(userID string) bool {
	a.mu.Lock()
	if _, ok := a.cancels[userID]; ok {
		a.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancels[userID] = cancel
	n := len(a.cancels)
	a.wg.Add(1)
	a.mu.Unlock()

	a.c.metrics.setAutoSync(n)
	if a.onToggle != nil {
		a.onToggle(userID, true)
	}
	go a.loop(ctx, userID)
	return true
}

// Disable stops the user's timer. A cycle already running finishes.
func (a *AutoSync) Disable(userID string) bool {
	a.mu.Lock()
	cancel, ok := a.cancels[userID]
	delete(a.cancels, userID)
	n := len(a.cancels)
	a.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	a.c.metrics.setAutoSync(n)
	if a.onToggle != nil {
		a.onToggle(userID, false)
	}
	return true
}

// Enabled reports whether the user's timer is running.
func (a *AutoSync) Enabled(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.cancels[userID]
	return ok
}

// Stop cancels every timer and waits for the loops to exit.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	for id, cancel := range a.cancels {
		cancel()
		delete(a.cancels, id)
	}
	a.mu.Unlock()
	a.c.metrics.setAutoSync(0)
	a.wg.Wait()
}

func (a *AutoSync) loop(ctx context.Context, userID string) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A started cycle is not cancelled by Disable.
			a.c.Sync(context.WithoutCancel(ctx), userID, TriggerTimer)
		}
	}
}
