// Package retry bounds collaborator failures with a small number of retries and
// jittered backoff. It wraps the model and media boundaries only; store
// mutations are never retried.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/myrjola/taleweaver/internal/errors"
)

// Config controls the retry loop.
type Config struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is the delay before the first retry; it doubles per attempt.
	BaseDelay time.Duration
}

// DefaultConfig retries twice after the initial attempt.
var DefaultConfig = Config{
	Attempts:  3,
	BaseDelay: 200 * time.Millisecond,
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The delay between attempts doubles each round with up to 50% random jitter so
// that concurrent turns do not hammer a struggling collaborator in lockstep.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if cfg.Attempts < 1 {
		cfg = DefaultConfig
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		jittered := delay + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(jittered):
		}
		delay *= 2
	}
	return errors.Wrap(lastErr, "attempts exhausted")
}

// DoWithResult is Do for functions that return a value alongside the error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}
