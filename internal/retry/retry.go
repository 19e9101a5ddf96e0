package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Outcome classifies how a retried stage ended.
type Outcome int

const (
	// Success means one attempt returned nil.
	Success Outcome = iota

	// RetryableFailure means the stage failed but attempts remained when the
	// loop was stopped by cancellation.
	RetryableFailure

	// Exhausted means every permitted attempt failed.
	Exhausted
)

// String returns the outcome name used in logs and metric labels.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the value produced by every retried stage.
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error // last attempt error, nil on Success
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Policy bounds a retried stage.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewBackOff returns a deterministic exponential backoff for the policy.
//
// A zero Multiplier means a constant InitialDelay. A zero MaxDelay leaves the
// sequence uncapped.
func (p Policy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	if b.Multiplier == 0 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delays returns the waits between attempts, len MaxAttempts-1.
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	b := p.NewBackOff()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AttemptFunc runs one attempt. n starts at 1.
type AttemptFunc func(ctx context.Context, n int) error

// RetryFunc is told about each failed attempt that will be retried.
type RetryFunc func(n int, err error, wait time.Duration)

// Do runs attempt until it succeeds or the policy is exhausted.
//
// Parameters:
//   - ctx: Cancellation stops the loop during a backoff wait
//   - p: Attempt bound and backoff shape; MaxAttempts < 1 is treated as 1
//   - sleep: Waits between attempts; nil means Sleep
//   - attempt: The operation
//   - onRetry: Optional hook called before each wait
//
// Returns:
//   - Result: Outcome, number of attempts made, and the last error
func Do(ctx context.Context, p Policy, sleep Sleeper, attempt AttemptFunc, onRetry RetryFunc) Result {
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attemptCtx := context.WithoutCancel(ctx)
	b := p.NewBackOff()

	var lastErr error
	for n := 1; ; n++ {
		lastErr = attempt(attemptCtx, n)
		if lastErr == nil {
			return Result{Outcome: Success, Attempts: n}
		}
		if n >= maxAttempts {
			return Result{Outcome: Exhausted, Attempts: n, Err: lastErr}
		}

		wait := b.NextBackOff()
		if onRetry != nil {
			onRetry(n, lastErr, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return Result{Outcome: RetryableFailure, Attempts: n, Err: lastErr}
		}
	}
}
