package relay

import (
	"sync"
	"time"
)

// Abuse limits applied per websocket connection.
const (
	// MaxFrameSize caps a single websocket frame.
	MaxFrameSize = 1024 * 1024
	// MaxInputSize caps the data field of one terminal:input envelope.
	MaxInputSize = 256 * 1024

	// MaxTermCols and MaxTermRows clamp resize requests.
	MaxTermCols = 1000
	MaxTermRows = 500

	// MessageRate is the sustained messages-per-second allowance per
	// connection; MessageBurst absorbs paste bursts.
	MessageRate  = 200
	MessageBurst = 200
)

// RateLimiter is a token bucket limiting message throughput on one
// connection. Messages over the limit are dropped, not queued.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing rate messages per second with
// the given burst capacity.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	rl.lastRefill = now
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// clampResize bounds requested terminal geometry to the allowed maximums.
func clampResize(cols, rows uint16) (uint16, uint16) {
	if cols > MaxTermCols {
		cols = MaxTermCols
	}
	if rows > MaxTermRows {
		rows = MaxTermRows
	}
	return cols, rows
}
