package worker

import (
	"context"
	"sync"
	"time"
)

// Throttle caps how many jobs run per user inside a fixed window. Wait
// blocks until a slot opens instead of failing, so a burst of jobs for
// one user drains slowly rather than bouncing through the retry queue.
type Throttle struct {
	mu    sync.Mutex
	users map[string]*userWindow

	limit  int
	window time.Duration

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type userWindow struct {
	start time.Time
	count int
}

func NewThrottle(limit int, window time.Duration) *Throttle {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	t := &Throttle{
		users:       make(map[string]*userWindow),
		limit:       limit,
		window:      window,
		stopCleanup: make(chan struct{}),
	}
	go t.startCleanup()
	return t
}

// Wait blocks until the user has a free slot in the current window, or
// until ctx is done.
func (t *Throttle) Wait(ctx context.Context, userID string) error {
	for {
		ok, retryIn := t.allow(userID, time.Now())
		if ok {
			return nil
		}

		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// allow takes a slot if one is free; otherwise it reports how long until
// the window resets.
func (t *Throttle) allow(userID string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, exists := t.users[userID]
	if !exists || now.Sub(u.start) >= t.window {
		t.users[userID] = &userWindow{start: now, count: 1}
		return true, 0
	}

	if u.count < t.limit {
		u.count++
		return true, 0
	}
	return false, u.start.Add(t.window).Sub(now)
}

func (t *Throttle) startCleanup() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanupStaleEntries()
		case <-t.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops users whose window expired long ago.
func (t *Throttle) cleanupStaleEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-2 * t.window)
	for userID, u := range t.users {
		if u.start.Before(cutoff) {
			delete(t.users, userID)
		}
	}
}

// ActiveUsers returns the number of currently tracked users.
func (t *Throttle) ActiveUsers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// Stop shuts down the cleanup goroutine.
func (t *Throttle) Stop() {
	t.shutdownOnce.Do(func() {
		close(t.stopCleanup)
	})
}
