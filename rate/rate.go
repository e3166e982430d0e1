// Package rate implements the coarse per-IP request floor in front of the
// proxy. It is deliberately not the authoritative limiter; it only drops
// obviously abusive clients before any work happens.
package rate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultLimit is the per-IP requests-per-minute floor.
const DefaultLimit = 100

const staleAfter = 5 * time.Minute

type window struct {
	minute   int64
	count    int
	lastSeen time.Time
}

// Limiter counts requests per client IP in one-minute windows. Counters
// reset when the minute rolls over; entries idle for more than five minutes
// are purged lazily.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	clock   clock.Clock
}

func NewLimiter(limit int) *Limiter {
	return newLimiterWithClock(limit, clock.New())
}

func newLimiterWithClock(limit int, clk clock.Clock) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		clock:   clk,
	}
}

// Allow counts one request for the client IP and reports whether it is
// within the running minute's floor.
func (l *Limiter) Allow(clientIP string) bool {
	now := l.clock.Now()
	minute := now.Unix() / 60

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(now)

	w, ok := l.windows[clientIP]
	if !ok || w.minute != minute {
		w = &window{minute: minute}
		l.windows[clientIP] = w
	}
	w.count++
	w.lastSeen = now
	return w.count <= l.limit
}

func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for ip, w := range l.windows {
		if w.lastSeen.Before(cutoff) {
			delete(l.windows, ip)
		}
	}
}
