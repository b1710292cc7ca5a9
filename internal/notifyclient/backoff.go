package notifyclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Backoff yields reconnect delays of base*2^n capped at maxDelay, for at most
// maxAttempts consecutive failures.
type Backoff struct {
	exp         *backoff.ExponentialBackOff
	maxAttempts int
	attempts    int
}

func NewBackoff(base, maxDelay time.Duration, maxAttempts int) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxDelay < base {
		maxDelay = DefaultBackoffCap
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = maxDelay
	exp.MaxElapsedTime = 0 // attempts are bounded by maxAttempts instead
	exp.Reset()

	return &Backoff{exp: exp, maxAttempts: maxAttempts}
}

// Next returns the delay before the next attempt, or false once the retry
// budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempts >= b.maxAttempts {
		return 0, false
	}
	b.attempts++
	return b.exp.NextBackOff(), true
}

// Reset is called on every successful live transition
func (b *Backoff) Reset() {
	b.attempts = 0
	b.exp.Reset()
}

func (b *Backoff) Attempts() int {
	return b.attempts
}
