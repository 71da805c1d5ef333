// Package retry provides a generic retry-with-backoff helper for
// operations outside the task queue's own retry authority (C9 owns
// fetch-task retries; this package is for incidental I/O such as
// checkpoint persistence and asset downloads).
package retry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/oakmoss/crawler/internal/failure"
	"github.com/oakmoss/crawler/internal/timeutil"
)

// RetryParam holds the parameters for retry logic. They are supplied by
// the caller (config), never inferred by the retry handler itself.
type RetryParam struct {
	Jitter       time.Duration
	RandomSeed   int64
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

func NewRetryParam(jitter time.Duration, randomSeed int64, maxAttempts int, backoffParam timeutil.BackoffParam) RetryParam {
	return RetryParam{Jitter: jitter, RandomSeed: randomSeed, MaxAttempts: maxAttempts, BackoffParam: backoffParam}
}

type RetryErrorCause string

const (
	ErrZeroAttempt       RetryErrorCause = "zero attempt"
	ErrExhaustedAttempts RetryErrorCause = "exhausted attempt"
)

type RetryError struct {
	Message   string
	Retryable bool
	Cause     RetryErrorCause
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry error: %s: %s", e.Cause, e.Message)
}

func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) IsRetryable() bool { return e.Retryable }

func (e *RetryError) Is(target error) bool {
	_, ok := target.(*RetryError)
	return ok
}

// Result carries a Retry call's outcome: the value on success, the
// terminal error on failure, and how many attempts it took.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

func newSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

func (r Result[T]) Value() T                       { return r.value }
func (r Result[T]) Err() failure.ClassifiedError    { return r.err }
func (r Result[T]) Attempts() int                   { return r.attempts }

// Retry runs fn up to retryParam.MaxAttempts times, sleeping an
// exponentially-growing, jittered delay between attempts. It stops early
// when fn's error is not retryable: its IsRetryable reports false, or,
// when it does not implement failure.Retryable, its Severity is not
// failure.SeverityRecoverable.
func Retry[T any](retryParam RetryParam, fn func() (T, failure.ClassifiedError)) Result[T] {
	var lastErr failure.ClassifiedError
	var zero T

	if retryParam.MaxAttempts < 1 {
		return Result[T]{err: &RetryError{Message: "max attempts cannot be 0", Cause: ErrZeroAttempt, Retryable: true}}
	}

	rng := rand.New(rand.NewSource(retryParam.RandomSeed))

	for attempt := 1; attempt <= retryParam.MaxAttempts; attempt++ {
		value, err := fn()
		if err == nil {
			return newSuccessResult(value, attempt)
		}
		lastErr = err

		if !isErrorRetryable(err) {
			return Result[T]{value: zero, err: err, attempts: attempt}
		}
		if attempt == retryParam.MaxAttempts {
			break
		}

		delay := timeutil.ExponentialBackoffDelay(attempt, retryParam.Jitter, *rng, retryParam.BackoffParam)
		time.Sleep(delay)
	}

	return Result[T]{
		value: zero,
		err: &RetryError{
			Message:   fmt.Sprintf("exhausted %d attempts: %v", retryParam.MaxAttempts, lastErr),
			Cause:     ErrExhaustedAttempts,
			Retryable: true,
		},
		attempts: retryParam.MaxAttempts,
	}
}

func isErrorRetryable(err failure.ClassifiedError) bool {
	if r, ok := err.(failure.Retryable); ok {
		return r.IsRetryable()
	}
	return err.Severity() == failure.SeverityRecoverable
}
