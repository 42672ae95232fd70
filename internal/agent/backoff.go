package agent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxOverloadDelay caps a single overload wait.
const maxOverloadDelay = 10 * time.Minute

// newOverloadBackOff returns a jitter-free schedule yielding base, 2*base,
// 4*base and so on.
func newOverloadBackOff(base time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxOverloadDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
