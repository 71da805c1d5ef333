// Package failure defines the crawler-wide error classification contract.
//
// Every error that crosses a component boundary (C1-C12) implements
// ClassifiedError so that callers can decide fatal-vs-recoverable without
// type-switching on every concrete error type.
package failure

// Severity distinguishes errors that must abort a session (Fatal) from
// errors that are local to a single task/URL and should be recorded and
// skipped (Recoverable).
type Severity int

const (
	SeverityRecoverable Severity = iota
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "recoverable"
}

// ClassifiedError is the contract every component-specific error type
// implements. Control flow (retry, skip, abort) is decided from Severity
// and, where applicable, a component-local Retryable()/Cause(), never from
// string matching on Error().
type ClassifiedError interface {
	error
	Severity() Severity
}

// Retryable is implemented by errors whose retry eligibility is meaningful
// outside their own package (network/HTTP errors feeding C9's backoff
// decision).
type Retryable interface {
	IsRetryable() bool
}
