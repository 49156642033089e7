package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrMissingURL    = errors.New("manifest entry has no url")

	// Verification errors, matched with errors.Is
	ErrChecksumMismatch = errors.New("sha1 mismatch")
	ErrMissingFile      = errors.New("missing file")
)

// APIError is an application-level error reported inside an otherwise
// successful metadata API response.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "api error: " + e.Message
}

// TransportError is an HTTP status failure from a remote endpoint.
type TransportError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %s: %s", e.Status, e.URL)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.URL)
}

// ChecksumMismatchError reports delivered bytes whose SHA-1 differs from the
// declared digest. The file it names is left on disk.
type ChecksumMismatchError struct {
	Filename string
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("sha1 mismatch for %s: expected %s, got %s", e.Filename, e.Expected, e.Actual)
}

// Is reports ErrChecksumMismatch as equivalent.
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// MissingFileError reports an expected output file absent after download.
type MissingFileError struct {
	Filename string
	Path     string
}

func (e *MissingFileError) Error() string {
	return "missing file " + e.Filename + " at " + e.Path
}

// Is reports ErrMissingFile as equivalent.
func (e *MissingFileError) Is(target error) bool {
	return target == ErrMissingFile
}

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// RetryableError is the outcome of a single attempt that may be repeated.
// RetryAfter is zero when the caller should pick its own backoff.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
