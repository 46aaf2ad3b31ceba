package errors

import (
	"errors"
	"fmt"
)

// KBError is the structured error type for the knowledge core.
// It carries the context needed for error handling, logging, and reporting
// upward to the chat flow.
type KBError struct {
	// Code is the unique error code (e.g., "KB_401_INDEX_BUILD").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Document, Index, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KBError.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new KBError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IndexBuildError creates an index build failure. The previous active
// version keeps serving; the error is reported upward.
func IndexBuildError(message string, cause error) *KBError {
	return New(CodeIndexBuild, message, cause)
}

// ValidationError creates a staged-version validation failure.
func ValidationError(message string, cause error) *KBError {
	return New(CodeIndexValidation, message, cause)
}

// DocumentFormatError creates a per-document parse/chunk failure.
// Other documents in the same batch proceed unaffected.
func DocumentFormatError(docID, message string, cause error) *KBError {
	return New(CodeDocumentFormat, message, cause).WithDetail("document_id", docID)
}

// RetrievalUnavailable creates a query-path failure. The caller decides
// how to degrade; this core never substitutes a fallback response.
func RetrievalUnavailable(message string, cause error) *KBError {
	return New(CodeRetrievalUnavailable, message, cause)
}

// EmbeddingError creates an embedding gateway failure.
func EmbeddingError(message string, cause error) *KBError {
	return New(CodeEmbeddingFailed, message, cause)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *KBError {
	return New(CodeConfigInvalid, message, cause)
}

// IsRetryable reports whether err (or any error in its chain) is a
// retryable KBError.
func IsRetryable(err error) bool {
	var kbErr *KBError
	if errors.As(err, &kbErr) {
		return kbErr.Retryable
	}
	return false
}

// CodeOf returns the code of the first KBError in the chain, or "".
func CodeOf(err error) string {
	var kbErr *KBError
	if errors.As(err, &kbErr) {
		return kbErr.Code
	}
	return ""
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code string) bool {
	var kbErr *KBError
	if errors.As(err, &kbErr) {
		return kbErr.Code == code
	}
	return false
}
