// Package retry drives bounded linear-backoff attempt loops. It knows
// nothing about what it retries; callers hand it a step function.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/abtime"
)

// ErrExhausted reports an attempt budget spent without success.
var ErrExhausted = errors.New("retry budget exhausted")

// delayID tags the retrier's timing call site for abtime.
const delayID = 1

// Clock is the slice of abtime.AbstractTime the retrier needs.
type Clock interface {
	After(d time.Duration, id int) <-chan time.Time
}

const (
	DefaultAttempts     = 5
	DefaultBaseInterval = time.Second
)

// Policy is a bounded linear backoff schedule. The wait before attempt i
// (0-indexed) is i times the base interval: the first attempt runs
// immediately and later ones wait linearly longer. Certification latency is
// bounded and roughly constant, so a linear schedule converges faster than
// an exponential one while still shedding load from a slow authority.
type Policy struct {
	Attempts     int           // attempt budget, DefaultAttempts when zero
	BaseInterval time.Duration // per-attempt delay increment
	Clock        Clock         // defaults to the real clock
}

// Default returns the policy used when the caller does not bring one.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, BaseInterval: DefaultBaseInterval}
}

// DelayFor returns the wait before attempt i.
func (p Policy) DelayFor(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseInterval
}

// Run calls fn until it reports done, the context is cancelled, or the
// attempt budget runs out. An error from fn consumes the attempt it failed
// on; the last one is carried in the exhaustion report. Run returns nothing
// before the loop reaches a terminal state.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context, attempt int) (bool, error)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	clock := p.Clock
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if delay := p.DelayFor(i); delay > 0 {
			select {
			case <-clock.After(delay, delayID):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		done, err := fn(ctx, i)
		if err != nil {
			lastErr = err
			continue
		}
		if done {
			return nil
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w: last attempt: %v", ErrExhausted, lastErr)
	}
	return ErrExhausted
}
