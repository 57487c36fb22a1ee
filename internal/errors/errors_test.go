package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"extraction code", ErrCodeDocumentUnreadable, CategoryExtraction},
		{"embedding code", ErrCodeEmbeddingRateLimited, CategoryEmbedding},
		{"validation code", ErrCodeDimensionMismatch, CategoryValidation},
		{"ledger code", ErrCodeLedgerUnavailable, CategoryLedger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_EmbeddingErrorsAreRetryable(t *testing.T) {
	err := New(ErrCodeEmbeddingRateLimited, "429 from provider", nil)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestNew_LedgerErrorsAreFatal(t *testing.T) {
	err := LedgerError("database unreachable", nil)
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
}

func TestError_FormatIncludesCode(t *testing.T) {
	err := New(ErrCodeDocumentUnreadable, "cannot parse page 3", nil)
	assert.Equal(t, "[ERR_201_DOCUMENT_UNREADABLE] cannot parse page 3", err.Error())
}

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk read failed")
	err := Wrap(ErrCodeDocumentUnreadable, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeDimensionMismatch, "index has 768, model has 1536", nil)
	b := New(ErrCodeDimensionMismatch, "different message", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New(ErrCodeInternal, "x", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	var got *DexError = Wrap(ErrCodeInternal, nil)
	assert.Nil(t, got)
}

func TestWithDetail_Chains(t *testing.T) {
	err := ExtractionError("bad document", nil).
		WithDetail("source", "report.pdf").
		WithDetail("page", "3")

	assert.Equal(t, "report.pdf", err.Details["source"])
	assert.Equal(t, "3", err.Details["page"])
}

func TestHelpers_OnPlainErrors(t *testing.T) {
	plain := fmt.Errorf("plain")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
}
