package errors

import (
	"fmt"
)

// DexError is the structured error type for docdex.
// It carries the context needed for error handling, logging, and the
// propagation policy: per-item errors are isolated, fatal errors abort
// the enclosing reconciliation run.
type DexError struct {
	// Code is the unique error code (e.g., "ERR_201_DOCUMENT_UNREADABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Extraction, Embedding, ...).
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
func (e *DexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *DexError) Is(target error) bool {
	if t, ok := target.(*DexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DexError) WithDetail(key, value string) *DexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new DexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DexError {
	return &DexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DexError from an existing error.
// The error's message becomes the DexError message.
func Wrap(code string, err error) *DexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ExtractionError creates an error for an unreadable source document.
func ExtractionError(message string, cause error) *DexError {
	return New(ErrCodeDocumentUnreadable, message, cause)
}

// EmbeddingError creates an embedding-capability error. Retryable.
func EmbeddingError(message string, cause error) *DexError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// LedgerError creates a durable-ledger error. Fatal to the run.
func LedgerError(message string, cause error) *DexError {
	return New(ErrCodeLedgerUnavailable, message, cause)
}

// BackendConfigError creates a vector-backend configuration error.
func BackendConfigError(message string, cause error) *DexError {
	return New(ErrCodeBackendMisconfigured, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if de, ok := err.(*DexError); ok {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the enclosing reconciliation run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if de, ok := err.(*DexError); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DexError.
// Returns empty string if not a DexError.
func GetCode(err error) string {
	if de, ok := err.(*DexError); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DexError.
func GetCategory(err error) Category {
	if de, ok := err.(*DexError); ok {
		return de.Category
	}
	return ""
}
