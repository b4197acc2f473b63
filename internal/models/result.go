package models

// SearchResult represents a single search hit with its document and score.
type SearchResult struct {
	Document   *Document `json:"document"`
	Score      float64   `json:"score"`
	Highlights []string  `json:"highlights,omitempty"`
	Rank       int       `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
	// AutoFuzzy is set when the exact query found nothing and the results come
	// from a fuzzy retry.
	AutoFuzzy bool `json:"auto_fuzzy,omitempty"`
}
