// Package keyword provides keyword (BM25) indexing and search over extracted document text.
package keyword

import (
	"context"

	"github.com/hyperjump/ooxtext/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Kind restricts hits to documents of one kind ("docx", "xlsx", "pptx"). Empty means all.
	Kind string
	// TitleBoost multiplies the score contribution from matches in the title (file name).
	// Values <= 1 disable the boost.
	TitleBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
	// Highlight requests matching fragments of the content for each hit.
	Highlight bool
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	Index(ctx context.Context, doc *models.Document) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID        string
	Score     float64
	Fragments []string
}
