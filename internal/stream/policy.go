package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how a Stream reconnects after losing its connection.
type Policy struct {
	// MaxRetries is the number of reconnect attempts allowed after
	// consecutive failures. The failure after the last retry gives up.
	MaxRetries int
	// BaseDelay is the wait before the first reconnect; each further
	// attempt doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
}

// DefaultPolicy retries 10 times, waiting 1s, 2s, 4s ... capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// NewBackOff returns a deterministic exponential backoff for the policy:
// no jitter and no elapsed-time limit, since the retry count bounds it.
func (p Policy) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay returns the wait before reconnect attempt n (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	b := p.NewBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
