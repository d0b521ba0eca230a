package infra

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff produces jittered exponential delays for reconnect loops. Safe for
// concurrent use.
type Backoff struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	factor  float64
	current time.Duration
	tries   int
}

func NewBackoff(min, max time.Duration, factor float64) *Backoff {
	return &Backoff{min: min, max: max, factor: factor, current: min}
}

// Next returns the delay to wait before the next attempt and advances the
// internal schedule. Jitter of +/-20% avoids thundering-herd reconnects.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tries++

	jitter := time.Duration((rand.Float64()*0.4 - 0.2) * float64(b.current))
	wait := b.current + jitter
	if wait < b.min {
		wait = b.min
	}

	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}

	return wait
}

// Reset restores the schedule to the minimum delay after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.min
	b.tries = 0
}

// Attempts reports how many delays were handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tries
}
