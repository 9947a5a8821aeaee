package db

import "github.com/kailas-cloud/imgdex/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for full-text (BM25) search.
// An empty Query matches every document passing Filters.
type TextQuery struct {
	IndexName    string
	Query        string
	Fields       []string // TEXT fields to search; empty means all
	Filters      filter.Expression
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for paginated, optionally sorted listing.
type ListQuery struct {
	IndexName string
	Query     string
	Offset    int
	Limit     int
	Fields    []string
	SortBy    string
	Desc      bool
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
