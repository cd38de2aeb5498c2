package ratelimit

import (
	"sync"
	"time"
)

// Token bucket guarding the inbound events of one connection
type Limiter struct {
	rate       float64
	burst      float64
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiterAt(rate, burst, time.Now)
}

func newLimiterAt(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastUpdate: now(),
		now:        now,
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}
	return false
}

// Tokens reports the tokens currently available
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now
	if elapsed <= 0 {
		return
	}

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}

// Strikes counts rejections over a connection's lifetime so one that keeps
// flooding can be cut off. Allowed events in between do not reset it.
type Strikes struct {
	limit int
	count int
}

func NewStrikes(limit int) *Strikes {
	return &Strikes{limit: limit}
}

// Record notes one rejected event and reports whether the limit is exceeded.
func (s *Strikes) Record() bool {
	s.count++
	return s.count > s.limit
}

// Count is the number of strikes so far.
func (s *Strikes) Count() int {
	return s.count
}
