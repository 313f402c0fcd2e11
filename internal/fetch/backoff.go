package fetch

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff is an explicit retry state machine. DelayFor is a pure function of
// the attempt number so the doubling-and-cap schedule is testable without any
// network traffic; Next layers jitter and the mutable attempt counter on top.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	JitterPct float64

	mu      sync.Mutex
	attempt int
	rng     *rand.Rand
}

func NewBackoff(base, max time.Duration, jitterPct float64) *Backoff {
	return &Backoff{
		Base:      base,
		Max:       max,
		JitterPct: jitterPct,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DelayFor returns the pre-jitter delay for the given zero-based attempt:
// base doubled per attempt, capped at Max. Monotonically non-decreasing.
func (b *Backoff) DelayFor(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Next advances the attempt counter and returns the jittered delay to sleep
// before the next try.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.DelayFor(b.attempt)
	b.attempt++

	if b.JitterPct > 0 {
		// symmetric jitter in [-JitterPct, +JitterPct]
		f := 1 + b.JitterPct*(2*b.rng.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Attempt returns the number of delays handed out so far.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset clears the attempt counter after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
