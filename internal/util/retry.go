// Package util provides shared utility functions for pagefs.
package util

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrLockHeld indicates another process holds the advisory lock on a
// backing file.
var ErrLockHeld = errors.New("backing file is locked by another process")

// LockRetryOptions returns retry options for advisory lock acquisition.
// Three attempts with doubling delays (100ms, then 200ms; capped at
// 300ms) cover a peer releasing the lock on shutdown; any other failure
// aborts immediately.
func LockRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsLockHeld),
		retry.Context(ctx),
	}
}

// OpenRetryOptions returns retry options for opening host files. Short
// delays ride out transient descriptor pressure or a peer still laying
// the file out.
func OpenRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(50 * time.Millisecond),
		retry.MaxDelay(200 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	}
}

// Retry executes fn with the given retry options.
// If all attempts fail, returns an error that collects the error of
// every attempt.
func Retry(fn func() error, opts ...retry.Option) error {
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn with the given retry options and returns
// its result.
func RetryWithResult[T any](fn func() (T, error), opts ...retry.Option) (T, error) {
	return retry.DoWithData(fn, opts...)
}

// IsLockHeld returns true if the error indicates a held advisory lock.
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
