// Package ratelimit implements per-client sliding-window admission
// control. State is in-memory only and does not survive restarts.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the trailing interval requests are counted over.
const Window = 60 * time.Second

// Limiter admits at most limit requests per client within the trailing
// window. Safe for concurrent use.
type Limiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// NewLimiter returns a limiter admitting limit requests per client per
// window.
func NewLimiter(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		now:     time.Now,
		clients: make(map[string][]time.Time),
	}
}

// SetClock overrides the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Allow records and admits a request for the client, or denies it
// without recording when the window is full.
func (l *Limiter) Allow(clientID string) bool {
	now := l.now()
	cutoff := now.Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.clients[clientID]
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= l.limit {
		l.clients[clientID] = stamps
		return false
	}

	l.clients[clientID] = append(stamps, now)
	return true
}

// Limit returns the configured per-window cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// Sweep drops clients whose every recorded request has aged out of the
// window, bounding memory growth across many distinct client IDs.
// Returns the number of clients removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, stamps := range l.clients {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// SweepLoop runs Sweep on the given interval until the context is
// cancelled.
func (l *Limiter) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// ClientCount reports how many distinct clients are currently tracked.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
