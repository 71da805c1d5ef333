package extract

import (
	"fmt"

	"github.com/oakmoss/crawler/internal/failure"
)

type ErrorCause string

const (
	ErrCauseEncodingError       ErrorCause = "unsupported response encoding"
	ErrCauseContentTooShort     ErrorCause = "content too short"
	ErrCauseLanguageNotAccepted ErrorCause = "language not accepted"
	ErrCauseUnparseableHTML     ErrorCause = "html could not be parsed"
)

// ExtractError reports a gating rejection from the extraction pipeline. All
// causes are terminal for the page being processed (never retryable): a
// short or wrong-language page won't change on a retried fetch of the same
// bytes.
type ExtractError struct {
	Message string
	Cause   ErrorCause
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *ExtractError) IsRetryable() bool {
	return false
}
