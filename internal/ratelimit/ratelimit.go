package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket. One is attached to each WebSocket connection
// to keep a misbehaving client from flooding its room.
type Limiter struct {
	rate     float64
	burst    int
	tokens   float64
	lastFill time.Time
	mu       sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		lastFill: time.Now(),
	}
}

func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.lastFill).Seconds() * l.rate
	l.lastFill = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
