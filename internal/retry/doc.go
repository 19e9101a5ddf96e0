// Package retry runs an operation a bounded number of times with an
// exponential backoff between attempts and reports the outcome as a value.
//
// Callers branch on Result.Outcome instead of inspecting errors:
//
//	res := retry.Do(ctx, policy, retry.Sleep, attempt, nil)
//	switch res.Outcome {
//	case retry.Success:
//	case retry.Exhausted:        // every attempt failed
//	case retry.RetryableFailure: // stopped by cancellation with attempts left
//	}
//
// The delay sequence is InitialDelay, InitialDelay*Multiplier, ... capped at
// MaxDelay, with no jitter. It is produced by cenkalti/backoff.
//
// Cancellation is observed only between attempts. Each attempt runs with a
// context that carries the caller's values but not its cancellation, so an
// in-flight connect or publish finishes (or times out) on its own terms.
package retry
