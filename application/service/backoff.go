package service

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// loopBackoff tracks consecutive receive failures of the indexer loop and
// hands out jittered, capped exponential delays.
type loopBackoff struct {
	policy     *backoff.ExponentialBackOff
	max        time.Duration
	persistent int
	failures   int
}

func newLoopBackoff(initial, maximum time.Duration, persistent int) *loopBackoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = maximum
	b.MaxElapsedTime = 0
	b.Reset()
	return &loopBackoff{policy: b, max: maximum, persistent: max(persistent, 1)}
}

// Failure records a failure and returns the delay before the next attempt,
// the consecutive failure count, and whether the failure is persistent.
func (l *loopBackoff) Failure() (time.Duration, int, bool) {
	l.failures++
	delay := min(l.policy.NextBackOff(), l.max)
	return delay, l.failures, l.failures >= l.persistent
}

// Success resets the failure count. It reports whether the loop was
// recovering from failures.
func (l *loopBackoff) Success() bool {
	if l.failures == 0 {
		return false
	}
	l.failures = 0
	l.policy.Reset()
	return true
}
