package reconcile

import (
	"context"

	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// DocumentStore is the document side read by the synchronizer.
type DocumentStore interface {
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Upsert(ctx context.Context, doc *domdoc.Document) (created bool, err error)
	FindSyncCandidates(ctx context.Context, limit int) ([]string, error)
	FindMissingEmbeddings(ctx context.Context, limit int) ([]string, error)
	ListAllIDs(ctx context.Context) ([]string, error)
}

// VectorIndex is the point side.
type VectorIndex interface {
	Upsert(ctx context.Context, p *domvec.Point) error
	Delete(ctx context.Context, id uint64) error
	ListPoints(ctx context.Context) ([]domvec.Ref, error)
}

// Processor is the pipeline's single-document path.
type Processor interface {
	ProcessOne(ctx context.Context, id string) dombatch.Result
}
