package pipeline

import (
	"context"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// DocumentStore is the document side of the pipeline.
type DocumentStore interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Upsert(ctx context.Context, doc *domdoc.Document) (created bool, err error)
	FindUnprocessed(ctx context.Context, limit int) ([]string, error)
}

// VectorIndex receives the points.
type VectorIndex interface {
	Upsert(ctx context.Context, p *domvec.Point) error
}

// Gateway is the model gateway.
type Gateway interface {
	GenerateDescription(ctx context.Context, doc *domdoc.Document) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}
