package document

import (
	"context"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

// Repository defines the storage contract for documents.
type Repository interface {
	Upsert(ctx context.Context, doc *domdoc.Document) (created bool, err error)
	Get(ctx context.Context, id string) (domdoc.Document, error)
	GetMany(ctx context.Context, ids []string) ([]domdoc.Document, error)
	ListAllIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// PointDeleter removes a document's point from the vector index.
type PointDeleter interface {
	Delete(ctx context.Context, id uint64) error
}
