// Package ratelimit bounds how often a client may start login handshakes.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter keyed by client.
type Limiter struct {
	mu       sync.Mutex
	requests map[string]*windowInfo
	limit    int
	window   time.Duration
	now      func() time.Time
}

type windowInfo struct {
	count   int
	resetAt time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return NewWithNow(limit, window, time.Now)
}

func NewWithNow(limit int, window time.Duration, now func() time.Time) *Limiter {
	l := &Limiter{
		requests: make(map[string]*windowInfo),
		limit:    limit,
		window:   window,
		now:      now,
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	if l.window <= 0 {
		return
	}

	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, info := range l.requests {
			if now.After(info.resetAt) {
				delete(l.requests, key)
			}
		}
		l.mu.Unlock()
	}
}

// Allow reports whether key has budget left in the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	info, exists := l.requests[key]
	if !exists || now.After(info.resetAt) {
		l.requests[key] = &windowInfo{count: 1, resetAt: now.Add(l.window)}
		return true
	}

	if info.count >= l.limit {
		return false
	}

	info.count++
	return true
}
