package messaging

import (
	"fmt"
	"sync"
	"time"
)

// breaker is a minimal circuit breaker around the messaging gateway.
// After maxFailures consecutive failures it opens for cooldown, letting
// one probe through afterwards.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       string
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       "closed",
	}
}

func (b *breaker) execute(fn func() error) error {
	b.mu.Lock()
	if b.state == "open" {
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = "half-open"
		} else {
			b.mu.Unlock()
			return fmt.Errorf("messaging gateway circuit open")
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.failures >= b.maxFailures || b.state == "half-open" {
			b.state = "open"
		}
		return err
	}

	b.state = "closed"
	b.failures = 0
	return nil
}
