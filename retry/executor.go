// Package retry wraps fallible backend calls in a bounded exponential retry loop.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"kiosk-gateway/logging"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second

	// MaxAttempts bounds the attempt budget; larger values are clamped.
	MaxAttempts = 10
	// maxDelay caps any single wait between attempts.
	maxDelay = 5 * time.Minute
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ExhaustedError is returned once every attempt has failed. Err is the last failure.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type Executor struct {
	maxAttempts  int
	initialDelay time.Duration
	sleep        Sleeper
	onRetry      func(operation string, attempt int, err error)
	log          *zap.SugaredLogger
}

type Option func(*Executor)

func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = min(n, MaxAttempts)
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.initialDelay = d
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithRetryHook is called after every failed attempt that will be retried.
func WithRetryHook(fn func(operation string, attempt int, err error)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		maxAttempts:  DefaultMaxAttempts,
		initialDelay: DefaultInitialDelay,
		sleep:        sleepContext,
		log:          logging.For("retry"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// schedule yields initialDelay * 2^(k-1) for k = 1, 2, ...
func (e *Executor) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max(e.initialDelay, maxDelay)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Execute runs fn until it succeeds or the attempt budget is spent. Every
// failure is retried the same way.
func Execute[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
		delays  = e.schedule()
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.log.Infow("Operation succeeded after retry", "operation", operation, "attempt", attempt)
			}
			return result, nil
		}
		lastErr = err
		if attempt == e.maxAttempts {
			break
		}

		delay := delays.NextBackOff()
		e.log.Warnw("Operation failed, retrying",
			"operation", operation, "attempt", attempt, "delay", delay, "error", err)
		if e.onRetry != nil {
			e.onRetry(operation, attempt, err)
		}
		if serr := e.sleep(ctx, delay); serr != nil {
			return zero, &ExhaustedError{Operation: operation, Attempts: attempt, Err: fmt.Errorf("%w (last error: %v)", serr, lastErr)}
		}
	}

	e.log.Errorw("Operation failed permanently", "operation", operation, "attempts", e.maxAttempts, "error", lastErr)
	return zero, &ExhaustedError{Operation: operation, Attempts: e.maxAttempts, Err: lastErr}
}

// Do is Execute for operations without a result.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := Execute(ctx, e, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

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
