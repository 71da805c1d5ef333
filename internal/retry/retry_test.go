package retry

import (
	"testing"
	"time"

	"github.com/oakmoss/crawler/internal/failure"
	"github.com/oakmoss/crawler/internal/timeutil"
)

type fakeErr struct{ retryable bool }

func (e *fakeErr) Error() string           { return "fake" }
func (e *fakeErr) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
func (e *fakeErr) IsRetryable() bool { return e.retryable }

func testParam(maxAttempts int) RetryParam {
	return NewRetryParam(0, 1, maxAttempts, timeutil.NewBackoffParam(time.Millisecond, 2.0, 10*time.Millisecond))
}

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	result := Retry(testParam(3), func() (int, failure.ClassifiedError) {
		return 42, nil
	})
	if result.Err() != nil || result.Value() != 42 || result.Attempts() != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRetryStopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	result := Retry(testParam(5), func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeErr{retryable: false}
	})
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if result.Err() == nil {
		t.Fatal("expected an error")
	}
}

func TestRetryExhaustsAttemptsOnRetryableError(t *testing.T) {
	calls := 0
	result := Retry(testParam(3), func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeErr{retryable: true}
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var retryErr *RetryError
	if result.Err() == nil {
		t.Fatal("expected an exhausted RetryError")
	} else if !result.Err().(*RetryError).IsRetryable() {
		t.Fatal("exhausted RetryError should report retryable")
	}
	_ = retryErr
}
