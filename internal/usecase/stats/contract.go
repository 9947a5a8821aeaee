package stats

import (
	"context"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

// DocumentCounter summarizes the document store.
type DocumentCounter interface {
	Counts(ctx context.Context) (domdoc.Counts, error)
}

// PointCounter counts points in the vector index.
type PointCounter interface {
	Count(ctx context.Context) (int, error)
}
