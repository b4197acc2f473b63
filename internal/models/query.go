package models

import (
	"errors"
	"fmt"
)

// Default search limits. The maximum is the indexer's default cap; Validate
// does not enforce it.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// ErrInvalidQuery is returned (wrapped) by Validate.
var ErrInvalidQuery = errors.New("invalid query")

// SearchQuery represents a library search request with optional filters.
type SearchQuery struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit,omitempty"`
	Kind         string `json:"kind,omitempty"`          // restrict to "docx", "xlsx" or "pptx"
	FuzzyEnabled bool   `json:"fuzzy_enabled,omitempty"` // enable fuzzy matching for typo tolerance
}

// Validate ensures the search query has valid fields and fills in a missing limit.
// Returns an error if the query is empty or the kind filter is unknown. An
// explicit limit is kept as is; capping it is up to the caller.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	switch q.Kind {
	case "", "docx", "xlsx", "pptx":
	default:
		return fmt.Errorf("%w: unknown kind filter %q", ErrInvalidQuery, q.Kind)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	return nil
}
