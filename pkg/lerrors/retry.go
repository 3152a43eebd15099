package lerrors

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy returns the bounded-exponential backoff policy Retry uses:
// the first attempt plus up to 5 retries, the first retry after about
// 10ms. Its one call site is the Write Buffer's log append; DB block
// sealing and directory lock acquisition are attempted once.
func RetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// Retry runs fn under RetryPolicy, wrapping the final error as a
// TransientIOError if every attempt fails.
func Retry(component string, fn func() error) error {
	var lastErr error
	op := func() error {
		lastErr = fn()
		return lastErr
	}
	if err := backoff.Retry(op, RetryPolicy()); err != nil {
		return &TransientIOError{Component: component, Err: lastErr}
	}
	return nil
}
