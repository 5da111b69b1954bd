package provider

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryConfig bounds how hard Execute works one provider before moving to
// the next in the chain.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// FailoverError reports that the whole provider chain was exhausted.
type FailoverError struct {
	Capability string
	Attempts   int
	Skipped    []string
	LastErr    error
}

func (e *FailoverError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("no %s providers configured", e.Capability)
	}
	return fmt.Sprintf("all %s providers failed after %d attempts: %v", e.Capability, e.Attempts, e.LastErr)
}

func (e *FailoverError) Unwrap() error {
	return e.LastErr
}

// Execute walks the provider chain in order. Every configured provider gets
// up to retry.MaxAttempts calls with retry.Delay between calls to the same
// provider; switching providers happens immediately. The first success wins.
// Every failure kind is retried the same way, credential rejections
// included. The returned count is the total number of calls made.
func Execute[T, R any](ctx context.Context, capability string, entries []Entry[T], retry RetryConfig, call func(context.Context, T) (R, error)) (R, int, error) {
	var zero R

	maxAttempts := retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	var lastErr error
	var skipped []string

	for _, entry := range entries {
		if !entry.Configured {
			skipped = append(skipped, entry.ID)
			log.Printf("[Failover] %s: skipping %s (not configured)", capability, entry.ID)
			continue
		}

		for try := 1; try <= maxAttempts; try++ {
			if try > 1 && retry.Delay > 0 {
				select {
				case <-ctx.Done():
					return zero, attempts, ctx.Err()
				case <-time.After(retry.Delay):
				}
			}

			attempts++
			log.Printf("[Failover] %s attempt %d via %s", capability, attempts, entry.ID)

			out, err := call(ctx, entry.Client)
			if err == nil {
				return out, attempts, nil
			}
			lastErr = err
			log.Printf("[Failover] %s attempt %d via %s failed: %v", capability, attempts, entry.ID, err)

			if ctx.Err() != nil {
				return zero, attempts, ctx.Err()
			}
		}
	}

	if attempts == 0 {
		return zero, 0, &FailoverError{Capability: capability, Skipped: skipped}
	}
	return zero, attempts, &FailoverError{
		Capability: capability,
		Attempts:   attempts,
		Skipped:    skipped,
		LastErr:    lastErr,
	}
}
