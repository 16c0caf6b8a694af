// Package ratelimit implements per-client sliding-window request limits.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

type Window struct {
	Unit  string
	Span  time.Duration
	Limit int
}

// Windows returns the minute, hour and day windows in checking order.
func Windows(perMinute, perHour, perDay int) []Window {
	return []Window{
		{Unit: "minute", Span: time.Minute, Limit: perMinute},
		{Unit: "hour", Span: time.Hour, Limit: perHour},
		{Unit: "day", Span: 24 * time.Hour, Limit: perDay},
	}
}

type ExceededError struct {
	Window Window
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d per %s", e.Window.Limit, e.Window.Unit)
}

// Limiter keeps the accepted request times of every client for the longest
// window. A rejected request is not recorded.
type Limiter struct {
	mu        sync.Mutex
	windows   []Window
	retention time.Duration
	hits      map[string][]time.Time
	now       func() time.Time
}

func New(windows []Window) *Limiter {
	var retention time.Duration
	for _, w := range windows {
		retention = max(retention, w.Span)
	}
	return &Limiter{
		windows:   windows,
		retention: retention,
		hits:      map[string][]time.Time{},
		now:       time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Allow records a request for client, or returns *ExceededError naming the
// first window that is full. Check and record happen under one lock.
func (l *Limiter) Allow(client string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.prune(client, now)

	for _, w := range l.windows {
		if w.Limit <= 0 {
			continue
		}
		count := 0
		for _, t := range hits {
			if now.Sub(t) < w.Span {
				count++
			}
		}
		if count >= w.Limit {
			return &ExceededError{Window: w}
		}
	}

	l.hits[client] = append(hits, now)
	return nil
}

// Count returns the requests recorded for client within the retention span.
func (l *Limiter) Count(client string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(client, l.now()))
}

func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

func (l *Limiter) prune(client string, now time.Time) []time.Time {
	hits := l.hits[client]
	kept := hits[:0]
	for _, t := range hits {
		if now.Sub(t) < l.retention {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, client)
		return nil
	}
	l.hits[client] = kept
	return kept
}
