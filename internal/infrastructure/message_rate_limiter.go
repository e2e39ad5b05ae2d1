package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupTick = 5 * time.Minute
	limiterIdleTTL     = 10 * time.Minute
)

// KeyedLimiter keeps one token bucket per key (user ID, chat ID).
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows perSecond events per key with the given burst.
func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now, consuming one token if so.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	now := kl.now()
	return kl.entry(key, now).limiter.AllowN(now, 1)
}

// WaitTime returns how long key must wait for its next token.
func (kl *KeyedLimiter) WaitTime(key string) time.Duration {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e, ok := kl.limiters[key]
	if !ok {
		return 0
	}
	now := kl.now()
	r := e.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(now)
}

// Reset forgets the bucket for key.
func (kl *KeyedLimiter) Reset(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	delete(kl.limiters, key)
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// RunCleanup drops buckets idle for longer than limiterIdleTTL until ctx is done.
func (kl *KeyedLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

func (kl *KeyedLimiter) sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	now := kl.now()
	for key, e := range kl.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(kl.limiters, key)
		}
	}
}

func (kl *KeyedLimiter) entry(key string, now time.Time) *keyedEntry {
	e, ok := kl.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(kl.rate, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	return e
}
