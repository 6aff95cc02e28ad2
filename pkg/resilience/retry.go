// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts. Values below 1 mean 1.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter adds randomness to backoff. 0.1 means ±10%.
	Jitter float64

	// IsRecoverable decides whether err is worth another attempt.
	// Nil retries everything except cancellation and typed errors not
	// flagged Recoverable.
	IsRecoverable func(error) bool

	// OnRetry, if set, is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// RetryResult reports how a Do call went.
type RetryResult struct {
	Attempts int
	// Errors holds the error of every failed attempt, oldest first.
	Errors []error
}

// Recovered reports whether the call succeeded after at least one failure.
func (r RetryResult) Recovered() bool {
	return len(r.Errors) > 0 && len(r.Errors) < r.Attempts
}

// DefaultRetryConfig returns three attempts starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WithMaxAttempts returns a copy with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a copy with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithIsRecoverable returns a copy with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithOnRetry returns a copy with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do runs fn until it succeeds, fails with a non-recoverable error or runs
// out of attempts. It returns the last error.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	_, err := rc.Run(ctx, fn)
	return err
}

// Run is Do that also reports the attempts made.
func (rc RetryConfig) Run(ctx context.Context, fn func() error) (RetryResult, error) {
	maxAttempts := max(rc.MaxAttempts, 1)
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}

	var res RetryResult
	for {
		res.Attempts++
		err := fn()
		if err == nil {
			return res, nil
		}
		res.Errors = append(res.Errors, err)
		if res.Attempts >= maxAttempts || !recoverable(err) {
			return res, err
		}

		delay := backoff(res.Attempts, rc)
		if rc.OnRetry != nil {
			rc.OnRetry(res.Attempts, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, errors.New(errors.CodeContextLost, "context canceled during retry", ctx.Err()).
				WithContext("attempt", res.Attempts).
				WithContext("max_attempts", maxAttempts)
		case <-timer.C:
		}
	}
}

// backoff is the delay after the given failed attempt (1-based).
func backoff(attempt int, rc RetryConfig) time.Duration {
	mult := rc.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := float64(delay) * rc.Jitter
		delay = max(time.Duration(float64(delay)+spread*(2*rand.Float64()-1)), 0)
	}
	return delay
}

func isRecoverableDefault(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *errors.Error
	if stderrors.As(err, &te) {
		return te.Recoverable
	}
	return true
}
