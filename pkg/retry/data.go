package retry

import (
	"time"

	"github.com/rohmanhakim/sitecrawl/pkg/failure"
	"github.com/rohmanhakim/sitecrawl/pkg/timeutil"
)

// Result carries the outcome of a Retry call: the produced value (zero on
// failure), the classified error (nil on success), and how many attempts it
// actually took - the caller needs the real count for observability, not
// just the configured ceiling.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

// NewSuccessResult builds a Result for a task that returned successfully
// after the given number of attempts.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

// Value returns the task's return value. It is the zero value of T when
// IsFailure reports true.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the classified error that ended the retry loop, or nil on
// success.
func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

// IsFailure reports whether the retry loop ended in failure.
func (r Result[T]) IsFailure() bool {
	return r.err != nil
}

// IsSuccess reports whether the retry loop ended in success.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// Attempts returns how many times the task was actually invoked.
func (r Result[T]) Attempts() int {
	return r.attempts
}

// RetryParam holds the parameters for retry logic.
// These parameters are passed from outside (e.g., config) and should not
// be known by the retry handler internally.
type RetryParam struct {
	BaseDelay    time.Duration
	Jitter       time.Duration
	RandomSeed   int64
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

// NewRetryParam creates a new RetryParam with the given settings.
func NewRetryParam(
	baseDelay time.Duration,
	jitter time.Duration,
	randomSeed int64,
	maxAttempts int,
	backoffParam timeutil.BackoffParam,
) RetryParam {
	return RetryParam{
		BaseDelay:    baseDelay,
		Jitter:       jitter,
		RandomSeed:   randomSeed,
		MaxAttempts:  maxAttempts,
		BackoffParam: backoffParam,
	}
}
