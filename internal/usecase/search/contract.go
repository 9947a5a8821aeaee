package search

import (
	"context"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// DocumentStore answers lexical queries and loads matched documents.
type DocumentStore interface {
	Query(ctx context.Context, text string, filters filter.Expression, limit int) ([]domdoc.Hit, error)
	GetMany(ctx context.Context, ids []string) ([]domdoc.Document, error)
}

// VectorIndex answers nearest-neighbour queries.
type VectorIndex interface {
	Search(
		ctx context.Context, vec []float32, filters filter.Expression, limit int, minScore float64,
	) ([]domvec.Hit, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
