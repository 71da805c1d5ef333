package queue

import (
	"fmt"

	"github.com/oakmoss/crawler/internal/failure"
)

type ErrorCause string

const (
	ErrCauseQueueFull ErrorCause = "pending queue full"
	ErrCauseNotFound  ErrorCause = "task not found"
	ErrCauseTimeout   ErrorCause = "in-progress timeout (zombie)"
)

// QueueError reports a rejected queue operation. Fullness is recoverable
// (the caller may retry once capacity frees up); a missing task id is a
// programming error in the caller and fatal.
type QueueError struct {
	Message string
	Cause   ErrorCause
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue error: %s: %s", e.Cause, e.Message)
}

func (e *QueueError) Severity() failure.Severity {
	if e.Cause == ErrCauseQueueFull {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
