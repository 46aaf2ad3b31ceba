// Package chunk splits source documents into bounded, overlapping text
// segments according to per-document-type configuration. Chunks are the unit
// of embedding and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk size defaults.
const (
	DefaultTargetTokens  = 512
	DefaultOverlapTokens = 64
	DefaultMinTokens     = 48
)

// DocType represents the type of a source document.
type DocType string

const (
	DocTypeProduct DocType = "product"
	DocTypeFAQ     DocType = "faq"
	DocTypePolicy  DocType = "policy"
)

// Document is an immutable source document. A content change produces a new
// Document with a new SourceHash; chunks derive their ids from it.
type Document struct {
	ID         string            // Stable document id (e.g., "P001")
	Type       DocType           // product, faq, policy
	RawContent string            // Full source text
	Metadata   map[string]string // Type-specific fields (question, answer, title, ...)
	SourceHash string            // sha256 of canonical content
	UpdatedAt  time.Time
}

// Chunk is a retrievable unit of content derived from a Document.
type Chunk struct {
	ID              string            // Derived from (document id, index, source hash)
	DocumentID      string            // Owning document
	DocType         DocType           // Inherited from the document
	Index           int               // 0-based, sequential within the document
	Text            string            // Chunk text, including any overlap prefix
	TokenCount      int               // Token count of Text
	OverlapWithPrev bool              // True when Text starts with the prior chunk's tail
	SectionTitle    string            // Policy section heading, if any
	Metadata        map[string]string // Inherited + chunk-local metadata
}

// EmbeddingText returns the text to embed for this chunk. FAQ chunks embed a
// question-weighted template instead of the raw content; everything else
// embeds the chunk text directly.
func (c *Chunk) EmbeddingText() string {
	if t, ok := c.Metadata["embedding_text"]; ok && t != "" {
		return t
	}
	return c.Text
}

// TypeConfig configures chunking for one document type.
type TypeConfig struct {
	// TargetTokens is the token budget per chunk.
	TargetTokens int `yaml:"target_tokens"`

	// OverlapTokens is the tail of the previous chunk prefixed onto the next.
	OverlapTokens int `yaml:"overlap_tokens"`

	// MinTokens is the size below which a trailing fragment is merged into
	// the previous chunk rather than emitted standalone.
	MinTokens int `yaml:"min_tokens"`

	// Separators are tried most-specific first; a segment that still exceeds
	// the budget is re-split with the next separator in the list.
	Separators []string `yaml:"separators"`
}

// Config maps document types to their chunking configuration.
type Config map[DocType]TypeConfig

// DefaultConfig returns the chunking configuration used when none is loaded.
// FAQ entries are atomic (no overlap, generous budget); policies split on
// structural boundaries before paragraphs and sentences.
func DefaultConfig() Config {
	return Config{
		DocTypeProduct: {
			TargetTokens:  DefaultTargetTokens,
			OverlapTokens: DefaultOverlapTokens,
			MinTokens:     DefaultMinTokens,
			Separators:    []string{"\n\n", "\n", "。", "；", " "},
		},
		DocTypeFAQ: {
			TargetTokens:  1024,
			OverlapTokens: 0,
			MinTokens:     0,
			Separators:    nil,
		},
		DocTypePolicy: {
			TargetTokens:  DefaultTargetTokens,
			OverlapTokens: DefaultOverlapTokens,
			MinTokens:     DefaultMinTokens,
			Separators:    []string{"\n\n", "\n", "。", "；"},
		},
	}
}

// Validate checks that every document type has a usable configuration.
func (c Config) Validate() error {
	for _, dt := range []DocType{DocTypeProduct, DocTypeFAQ, DocTypePolicy} {
		tc, ok := c[dt]
		if !ok {
			return fmt.Errorf("missing chunk config for document type %q", dt)
		}
		if tc.TargetTokens <= 0 {
			return fmt.Errorf("chunk config for %q: target_tokens must be positive", dt)
		}
		if tc.OverlapTokens < 0 || tc.OverlapTokens >= tc.TargetTokens {
			return fmt.Errorf("chunk config for %q: overlap_tokens must be in [0, target_tokens)", dt)
		}
		if tc.MinTokens < 0 {
			return fmt.Errorf("chunk config for %q: min_tokens must not be negative", dt)
		}
	}
	return nil
}

// ChunkID derives a stable chunk id from the owning document, the chunk's
// position, and the document's content version. Re-indexing unchanged
// content produces identical ids.
func ChunkID(documentID string, index int, sourceHash string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", documentID, index, sourceHash)))
	return hex.EncodeToString(h[:8])
}

// HashContent returns the canonical content hash for a document body.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
