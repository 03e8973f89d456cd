// Package ratelimit provides the in-process fixed-window attempt limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/useraccounts/user-accounts/internal/core/ports"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 10
)

type window struct {
	count int
	start time.Time
}

// FixedWindow counts attempts per key in windows anchored at the first
// attempt. Expired windows are reset lazily on the next attempt; Run adds an
// optional sweep that drops idle keys.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[string]*window
}

// NewFixedWindow creates a limiter allowing limit attempts per window.
// Non-positive values fall back to DefaultLimit and DefaultWindow.
func NewFixedWindow(limit int, win time.Duration) *FixedWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &FixedWindow{
		limit:   limit,
		window:  win,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// WithClock replaces the limiter's clock.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.now = now
	return l
}

// Allow records one attempt for key and reports whether it fits the budget.
func (l *FixedWindow) Allow(_ context.Context, key string) (ports.RateDecision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.entries[key]
	if w == nil || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.entries[key] = w
	}
	w.count++

	d := ports.RateDecision{Limit: l.limit}
	if w.count > l.limit {
		d.RetryAfter = w.start.Add(l.window).Sub(now)
		return d, nil
	}
	d.Allowed = true
	d.Remaining = l.limit - w.count
	return d, nil
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops every key whose window has elapsed.
func (l *FixedWindow) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, k)
		}
	}
}

// Run sweeps once per window until ctx is cancelled.
func (l *FixedWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
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
