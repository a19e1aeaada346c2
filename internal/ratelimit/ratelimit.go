package ratelimit

import (
	"sync"
	"time"
)

// Limiter answers whether a client may make another request.
type Limiter interface {
	Allow(client string) bool
}

type window struct {
	count int
	start time.Time
}

// FixedWindow counts requests per client within fixed intervals.
type FixedWindow struct {
	max      int
	interval time.Duration
	mu       sync.Mutex
	windows  map[string]*window
}

func NewFixedWindow(max int, interval time.Duration) *FixedWindow {
	return &FixedWindow{
		max:      max,
		interval: interval,
		windows:  make(map[string]*window),
	}
}

func (l *FixedWindow) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return false
	}

	now := time.Now()
	w := l.windows[client]

	if w == nil || now.Sub(w.start) > l.interval {
		l.pruneLocked(now)
		l.windows[client] = &window{count: 1, start: now}
		return true
	}

	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// pruneLocked drops expired windows so the map stays bounded by the
// number of clients seen in one interval.
func (l *FixedWindow) pruneLocked(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for client, w := range l.windows {
		if now.Sub(w.start) > l.interval {
			delete(l.windows, client)
		}
	}
}
