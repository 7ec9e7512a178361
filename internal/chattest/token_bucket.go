package chattest

import (
	"sync"
	"time"
)

// tokenBucket throttles one peer's chat messages: burst tokens up front,
// refilled continuously at burst per interval.
type tokenBucket struct {
	mu     sync.Mutex
	burst  float64
	perSec float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

func newTokenBucket(burst int, interval time.Duration, now func() time.Time) *tokenBucket {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &tokenBucket{
		burst:  float64(burst),
		perSec: float64(burst) / interval.Seconds(),
		tokens: float64(burst),
		last:   now(),
		now:    now,
	}
}

// take spends one token if one is available.
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.perSec)
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
