package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oakmoss/crawler/internal/failure"
	"github.com/oakmoss/crawler/internal/fileutil"
	"github.com/oakmoss/crawler/internal/queue"
	"github.com/oakmoss/crawler/internal/retry"
	"github.com/oakmoss/crawler/internal/timeutil"
)

// persistError classifies a checkpoint write failure for the retry helper.
type persistError struct {
	err       error
	retryable bool
}

func (e *persistError) Error() string { return e.err.Error() }
func (e *persistError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
func (e *persistError) IsRetryable() bool { return e.retryable }

// FilePersister checkpoints a queue.Snapshot to a single JSON file on disk,
// retrying transient write failures through internal/retry. It is the
// default Persister a session can attach via WithPersister.
type FilePersister struct {
	Path       string
	RetryParam retry.RetryParam
}

// NewFilePersister builds a FilePersister with a short, fixed retry budget
// -- checkpoint writes are frequent and idempotent, so failures are worth
// one or two quick retries but never worth blocking the session on.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{
		Path: path,
		RetryParam: retry.NewRetryParam(
			50*time.Millisecond,
			time.Now().UnixNano(),
			3,
			timeutil.NewBackoffParam(100*time.Millisecond, 2.0, time.Second),
		),
	}
}

func (p *FilePersister) Persist(snapshot queue.Snapshot) error {
	if p.Path == "" {
		return nil
	}
	if err := fileutil.EnsureDir(filepath.Dir(p.Path)); err != nil {
		return fmt.Errorf("ensure checkpoint dir: %w", err)
	}

	data, err := queue.MarshalSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	result := retry.Retry(p.RetryParam, func() (struct{}, failure.ClassifiedError) {
		tmp := p.Path + ".tmp"
		if werr := os.WriteFile(tmp, data, 0644); werr != nil {
			return struct{}{}, &persistError{err: werr, retryable: true}
		}
		if werr := os.Rename(tmp, p.Path); werr != nil {
			return struct{}{}, &persistError{err: werr, retryable: true}
		}
		return struct{}{}, nil
	})
	if result.Err() != nil {
		return result.Err()
	}
	return nil
}
