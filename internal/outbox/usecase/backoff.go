package usecase

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy returns the delay before retry number retry (0 for the first retry).
type BackoffPolicy interface {
	Delay(retry int) time.Duration
}

// NewFixedBackoff returns a policy that always waits delay.
func NewFixedBackoff(delay time.Duration) BackoffPolicy {
	return fixedBackoff{b: backoff.NewConstantBackOff(delay)}
}

type fixedBackoff struct {
	b *backoff.ConstantBackOff
}

func (f fixedBackoff) Delay(int) time.Duration {
	return f.b.NextBackOff()
}

// NewExponentialBackoff returns a policy that doubles base on every retry, randomizes
// each delay by half its value and never waits longer than maxDelay.
func NewExponentialBackoff(base, maxDelay time.Duration) BackoffPolicy {
	if maxDelay <= 0 {
		maxDelay = backoff.DefaultMaxInterval
	}
	return exponentialBackoff{base: base, maxDelay: maxDelay}
}

type exponentialBackoff struct {
	base     time.Duration
	maxDelay time.Duration
}

func (e exponentialBackoff) Delay(retry int) time.Duration {
	if e.base <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.base),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.5),
		backoff.WithMaxInterval(e.maxDelay),
		backoff.WithMaxElapsedTime(0),
	)

	delay := b.NextBackOff()
	for range max(retry, 0) {
		delay = b.NextBackOff()
	}

	return delay
}
