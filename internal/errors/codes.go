// Package errors provides structured error handling for the knowledge core.
//
// Error codes follow the pattern KB_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Document and chunking errors
//   - 3XX: Embedding gateway errors
//   - 4XX: Index build errors
//   - 5XX: Retrieval errors
//   - 6XX: Storage errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDocument indicates per-document parsing and chunking errors.
	CategoryDocument Category = "DOCUMENT"
	// CategoryEmbedding indicates embedding gateway errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryIndex indicates index build and promotion errors.
	CategoryIndex Category = "INDEX"
	// CategoryRetrieval indicates query-path errors.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryStorage indicates vector store, keyword index, and manifest errors.
	CategoryStorage Category = "STORAGE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the service can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	CodeConfigNotFound = "KB_101_CONFIG_NOT_FOUND"
	CodeConfigInvalid  = "KB_102_CONFIG_INVALID"

	// Document errors (200-299)
	CodeDocumentFormat  = "KB_201_DOCUMENT_FORMAT"
	CodeDocumentMissing = "KB_202_DOCUMENT_MISSING"

	// Embedding errors (300-399)
	CodeEmbeddingFailed      = "KB_301_EMBEDDING_FAILED"
	CodeEmbeddingUnavailable = "KB_302_EMBEDDING_UNAVAILABLE"
	CodeEmbeddingDimension   = "KB_303_EMBEDDING_DIMENSION"

	// Index build errors (400-499)
	CodeIndexBuild          = "KB_401_INDEX_BUILD"
	CodeIndexValidation     = "KB_402_INDEX_VALIDATION"
	CodeIndexBuildCancelled = "KB_403_INDEX_BUILD_CANCELLED"
	CodeIndexLocked         = "KB_404_INDEX_LOCKED"

	// Retrieval errors (500-599)
	CodeRetrievalUnavailable = "KB_501_RETRIEVAL_UNAVAILABLE"
	CodeRerankFailed         = "KB_502_RERANK_FAILED"

	// Storage errors (600-699)
	CodeStoreCorrupt = "KB_601_STORE_CORRUPT"
	CodeManifest     = "KB_602_MANIFEST"
	CodeStoreClosed  = "KB_603_STORE_CLOSED"
)

// categoryFromCode derives the category from a code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 6 {
		return CategoryIndex
	}
	switch code[3] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDocument
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryIndex
	case '5':
		return CategoryRetrieval
	case '6':
		return CategoryStorage
	default:
		return CategoryIndex
	}
}

// severityFromCode derives the default severity for a code.
// No code in this core is fatal to the serving path: a failed build leaves
// the previous active version serving.
func severityFromCode(code string) Severity {
	switch code {
	case CodeConfigInvalid, CodeConfigNotFound:
		return SeverityFatal
	case CodeDocumentFormat, CodeRerankFailed:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes lists codes where retrying the same operation can succeed.
var retryableCodes = map[string]bool{
	CodeEmbeddingFailed:      true,
	CodeEmbeddingUnavailable: true,
	CodeRetrievalUnavailable: true,
	CodeIndexLocked:          true,
}

func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
