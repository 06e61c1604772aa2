package errors

import "fmt"

// ErrorType represents different types of errors that can occur during a crawl
type ErrorType string

const (
	// ErrorTypeNavigation marks a click or view change that did not produce
	// the expected result. Retried per item; fatal when it repeats on the
	// overview grid itself.
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction marks a viewport read failure during metadata
	// extraction. Low extraction confidence is not an error.
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeBoundaryNotFound marks an exhausted boundary search. The
	// orchestrator falls back to per-item fast-forward; never fatal.
	ErrorTypeBoundaryNotFound ErrorType = "boundary_not_found"
	// ErrorTypeDownload marks a failed download trigger.
	ErrorTypeDownload ErrorType = "download"
	// ErrorTypeTimeout marks a viewport or download operation that exceeded
	// its bounded wait.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeViewport marks a lower-level browser failure (lost target,
	// evaluate error) outside any more specific category.
	ErrorTypeViewport ErrorType = "viewport"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a crawl error with type information
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error without a cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNavigation, ErrorTypeTimeout, ErrorTypeDownload, ErrorTypeViewport:
		return true
	case ErrorTypeExtraction, ErrorTypeBoundaryNotFound:
		return false
	default:
		return false
	}
}
