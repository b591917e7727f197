// Package backoff implements the bounded exponential retry delay used by the
// polling worker.
package backoff

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is wrapped by [Policy.Validate] failures.
var ErrInvalidPolicy = errors.New("invalid backoff policy")

// NextDelay returns the delay that follows current: current doubled, capped at
// max. A non-positive current is treated as the start of a sequence and yields
// base.
func NextDelay(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return min(base, max)
	}
	if current > max/2 {
		return max
	}
	return min(current*2, max)
}

// Policy bounds the retry loop of a polling worker.
//
// Example: Policy{Base: 5 * time.Second, Max: time.Minute, MaxAttempts: 5}
//   - after 1 failure:  5s
//   - after 2 failures: 10s
//   - after 3 failures: 20s
//   - after 4 failures: 40s
//   - after 5+:         60s (capped)
type Policy struct {
	// Base is the delay after the first failure.
	Base time.Duration
	// Max caps every delay.
	Max time.Duration
	// MaxAttempts is the number of poll attempts before the worker gives up.
	MaxAttempts int
}

// Delay returns min(Base * 2^failures, Max), where failures is the number of
// failures already followed by a sleep. Delay(0) is Base.
func (p Policy) Delay(failures int) time.Duration {
	d := min(p.Base, p.Max)
	for range max(failures, 0) {
		d = NextDelay(d, p.Base, p.Max)
		if d == p.Max {
			break
		}
	}
	return d
}

// Validate checks 0 < Base < Max and MaxAttempts >= 1.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("%w: base delay must be > 0, got %s", ErrInvalidPolicy, p.Base)
	}
	if p.Base >= p.Max {
		return fmt.Errorf("%w: base delay %s must be less than max delay %s", ErrInvalidPolicy, p.Base, p.Max)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	return nil
}

// Budget returns the total time spent sleeping before a worker that fails
// every attempt gives up. There is no sleep after the final attempt.
func (p Policy) Budget() time.Duration {
	var total time.Duration
	for i := range max(p.MaxAttempts-1, 0) {
		total += p.Delay(i)
	}
	return total
}
