// Package ratelimit throttles anonymous writes per client, with fixed
// windows or token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Rule is a budget of Limit actions per Window. A rule with a
// non-positive limit or window never throttles.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) disabled() bool {
	return r.Limit <= 0 || r.Window <= 0
}

// Limiter decides whether a keyed action may proceed.
type Limiter interface {
	// Allow consumes one action from key's budget. When the budget is
	// spent it returns false and the time until the window resets.
	Allow(key string, rule Rule) (bool, time.Duration)

	// Remaining returns how many actions key may still take.
	Remaining(key string, rule Rule) int
}

// Pruner is a Limiter that forgets idle keys in the background.
type Pruner interface {
	Limiter
	StartCleanup(ctx context.Context, interval time.Duration)
}

// New returns the limiter for mode: "window" (the default) or "bucket".
func New(mode string) (Pruner, error) {
	switch mode {
	case "", "window":
		return NewMemoryLimiter(), nil
	case "bucket":
		return NewBucketLimiter(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit mode %q", mode)
	}
}

// MemoryLimiter keeps windows in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(key string, rule Rule) (bool, time.Duration) {
	if rule.disabled() {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(rule.Window)}
		return true, 0
	}

	if w.count >= rule.Limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (l *MemoryLimiter) Remaining(key string, rule Rule) int {
	if rule.disabled() {
		return rule.Limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !l.now().Before(w.resetAt) {
		return rule.Limit
	}
	return max(rule.Limit-w.count, 0)
}

// Cleanup drops expired windows.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Len returns the number of tracked windows.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	runEvery(ctx, interval, l.Cleanup)
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

var _ Limiter = (*MemoryLimiter)(nil)
