package storagesink

import (
	"fmt"

	"github.com/oakmoss/crawler/internal/failure"
)

type ErrorCause string

const (
	ErrCauseWriteFailure  ErrorCause = "write failure"
	ErrCauseDiskFull      ErrorCause = "disk full"
	ErrCauseEncodeFailure ErrorCause = "encode failure"
	ErrCauseUnsupported   ErrorCause = "unsupported format"
)

type StorageError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
	Path      string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s) at %s: %s", e.Cause, e.Path, e.Message)
}

func (e *StorageError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StorageError) IsRetryable() bool { return e.Retryable }
