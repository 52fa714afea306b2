package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketLimiter spreads each rule over its window as a token bucket:
// Limit tokens refill evenly across Window and at most Limit can be
// spent at once.
type BucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	rule    Rule
	limiter *rate.Limiter
}

func NewBucketLimiter() *BucketLimiter {
	return &BucketLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// get returns key's limiter, replacing it when the rule changed.
func (l *BucketLimiter) get(key string, rule Rule) *rate.Limiter {
	b, ok := l.buckets[key]
	if !ok || b.rule != rule {
		every := rate.Every(rule.Window / time.Duration(rule.Limit))
		b = &bucket{rule: rule, limiter: rate.NewLimiter(every, rule.Limit)}
		l.buckets[key] = b
	}
	return b.limiter
}

func (l *BucketLimiter) Allow(key string, rule Rule) (bool, time.Duration) {
	if rule.disabled() {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	lim := l.get(key, rule)
	if lim.AllowN(now, 1) {
		return true, 0
	}

	missing := 1 - lim.TokensAt(now)
	wait := math.Ceil(missing / float64(lim.Limit()) * float64(time.Second))
	return false, time.Duration(wait)
}

func (l *BucketLimiter) Remaining(key string, rule Rule) int {
	if rule.disabled() {
		return rule.Limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.rule != rule {
		return rule.Limit
	}
	tokens := int(math.Floor(b.limiter.TokensAt(l.now())))
	return min(max(tokens, 0), rule.Limit)
}

// Cleanup drops buckets that have refilled completely.
func (l *BucketLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if b.limiter.TokensAt(now) >= float64(b.rule.Limit) {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked buckets.
func (l *BucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *BucketLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	runEvery(ctx, interval, l.Cleanup)
}

var _ Limiter = (*BucketLimiter)(nil)
