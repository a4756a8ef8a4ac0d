package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retried operation. Delay grows linearly with the attempt
// number and is capped at MaxDelay; there is no jitter and every error is
// treated as retryable until the attempt budget is spent.
type Policy struct {
	InitialDelay time.Duration
	MaxRetries   int
	MaxDelay     time.Duration
}

// Delay returns the wait before the next attempt. attempt is 1-based.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error so Do stops retrying and returns it immediately,
// unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Do invokes op up to p.MaxRetries times, waiting Delay(p, attempt) between
// attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T
	if p.MaxRetries <= 0 {
		return zero, errors.New("retry: max retries must be positive")
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		value, err := op()
		if err == nil {
			return value, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err
		if attempt == p.MaxRetries {
			break
		}
		if err := sleep(ctx, Delay(p, attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
