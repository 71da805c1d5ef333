// Package fileutil holds small filesystem helpers shared by the storage
// sink and the checkpoint writer.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oakmoss/crawler/internal/failure"
)

type FileErrorCause string

const ErrCausePathError FileErrorCause = "path error"

type FileError struct {
	Message   string
	Retryable bool
	Cause     FileErrorCause
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file error: %s: %s", e.Cause, e.Message)
}

func (e *FileError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// GetFileExtension extracts the file extension from a path, without the
// leading dot, or "" if none.
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// EnsureDir creates dir (joined with any additional path segments) if it
// doesn't already exist.
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := append([]string{dir}, path...)
	full := filepath.Join(targetPath...)
	if err := os.MkdirAll(full, 0755); err != nil {
		return &FileError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError}
	}
	return nil
}
