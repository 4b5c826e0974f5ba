// Package retry runs idempotent operations with bounded attempts and
// exponential backoff. Only transport-class failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"converse-relay/internal/domain"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 300 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Policy struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int
	// BaseDelay doubles after every failed attempt.
	BaseDelay time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	// Retryable defaults to IsTransient.
	Retryable func(error) bool
	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Backoff returns the delay after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Do executes op until it succeeds, fails with a non-retryable error or the
// attempt budget is spent. Exhaustion yields *domain.NetworkExhaustedError.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	attempts := p.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, ctx.Err())
		}
		if attempt == attempts-1 {
			break
		}
		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, err)
		}
	}
	return zero, &domain.NetworkExhaustedError{Attempts: attempts, Err: lastErr}
}

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a transport failure worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a connection, timeout or DNS class failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
