package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Retrier retries transient backend failures with exponential backoff:
// attempt n waits BaseDelay * 2^(n-1) before the next try. Any other error
// stops immediately.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Timer replaces the wall clock between attempts, mainly in tests.
	Timer backoff.Timer
	// Notify is called before every wait with the failure and the delay.
	Notify func(attempt int, err error, delay time.Duration)
}

// Do runs op until it succeeds, returns a non-transient error or the
// attempt budget is spent. It returns the number of attempts made.
func (r Retrier) Do(ctx context.Context, op func(ctx context.Context) (string, error)) (string, int, error) {
	max := r.MaxAttempts
	if max < 1 {
		max = DefaultMaxAttempts
	}
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = base << uint(max)
	eb.MaxElapsedTime = 0
	eb.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max-1)), ctx)

	var (
		out      string
		attempts int
	)
	operation := func() error {
		attempts++
		res, err := op(ctx)
		if err == nil {
			out = res
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if r.Notify != nil {
			r.Notify(attempts, err, d)
		}
	}

	if err := backoff.RetryNotifyWithTimer(operation, b, notify, r.Timer); err != nil {
		if IsTransient(err) {
			return "", attempts, fmt.Errorf("model request failed after %d attempts: %w", attempts, err)
		}
		return "", attempts, err
	}
	return out, attempts, nil
}
