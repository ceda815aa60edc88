package ratelimit

import (
	"sync"
	"time"
)

// Limiter bounds the number of admitted requests per caller within a
// sliding window. It is a best-effort, single-process guard: counters
// live in memory and reset on restart. Construct one per server (or
// per test); there is no package-level instance.
type Limiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	maxEntries int
	visitors   map[string]*visitor
}

type visitor struct {
	count     int
	expiresAt time.Time
}

const defaultMaxEntries = 1024

func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:        max,
		window:     window,
		maxEntries: defaultMaxEntries,
		visitors:   make(map[string]*visitor),
	}
}

// Allow reports whether the caller identified by key may proceed, and
// counts the attempt if so. Each admitted request slides the key's
// expiry forward a full window, so the counter only resets after the
// caller has been quiet for a whole window. Rejected attempts do not
// extend it.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	v, ok := l.visitors[key]
	if !ok || now.After(v.expiresAt) {
		if len(l.visitors) >= l.maxEntries {
			l.evict(now)
		}
		l.visitors[key] = &visitor{count: 1, expiresAt: now.Add(l.window)}
		return true
	}

	if v.count >= l.max {
		return false
	}
	v.count++
	v.expiresAt = now.Add(l.window)
	return true
}

// Remaining reports how many requests the key has left in its current
// window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok || time.Now().After(v.expiresAt) {
		return l.max
	}
	if v.count >= l.max {
		return 0
	}
	return l.max - v.count
}

// evict drops expired entries; if none have expired it drops the entry
// closest to expiry. Called with the lock held, only when the map is at
// capacity, so there is no periodic cleanup pass.
func (l *Limiter) evict(now time.Time) {
	var oldestKey string
	var oldestExpiry time.Time
	dropped := false

	for key, v := range l.visitors {
		if now.After(v.expiresAt) {
			delete(l.visitors, key)
			dropped = true
			continue
		}
		if oldestKey == "" || v.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = v.expiresAt
		}
	}
	if !dropped && oldestKey != "" {
		delete(l.visitors, oldestKey)
	}
}
