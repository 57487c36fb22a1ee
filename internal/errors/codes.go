// Package errors provides structured error handling for docdex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Document extraction and IO errors
//   - 3XX: Embedding and network errors
//   - 4XX: Validation and backend configuration errors
//   - 5XX: Ledger and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryExtraction indicates document reading and extraction errors.
	CategoryExtraction Category = "EXTRACTION"
	// CategoryEmbedding indicates embedding-capability and network errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates input validation and backend setup errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryLedger indicates durable ledger errors.
	CategoryLedger Category = "LEDGER"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the item failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Extraction errors (200-299): malformed or unreadable source documents.
	// Per-document; the run skips the document and continues.
	ErrCodeDocumentUnreadable = "ERR_201_DOCUMENT_UNREADABLE"
	ErrCodeDocumentTooLarge   = "ERR_202_DOCUMENT_TOO_LARGE"
	ErrCodeSpoolFailed        = "ERR_203_SPOOL_FAILED"

	// Embedding errors (300-399): embedding capability unavailable or
	// rate-limited. Retryable; the batch aborts with ledger state preserved.
	ErrCodeEmbeddingTimeout     = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingUnavailable = "ERR_302_EMBEDDING_UNAVAILABLE"
	ErrCodeEmbeddingRateLimited = "ERR_303_EMBEDDING_RATE_LIMITED"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch    = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeBackendMisconfigured = "ERR_403_BACKEND_MISCONFIGURED"

	// Ledger and internal errors (500-599): fatal to the enclosing run.
	ErrCodeLedgerUnavailable = "ERR_501_LEDGER_UNAVAILABLE"
	ErrCodeLedgerCorrupt     = "ERR_502_LEDGER_CORRUPT"
	ErrCodeInternal          = "ERR_503_INTERNAL"
	ErrCodeReconcileFailed   = "ERR_504_RECONCILE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryLedger
	}

	// Numeric portion, e.g. "201" from "ERR_201_DOCUMENT_UNREADABLE"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryExtraction
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryLedger
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLedgerUnavailable, ErrCodeLedgerCorrupt, ErrCodeReconcileFailed:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingTimeout, ErrCodeEmbeddingUnavailable, ErrCodeEmbeddingRateLimited:
		return true
	default:
		return false
	}
}
