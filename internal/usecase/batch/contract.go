package batch

import (
	"context"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

// Ingester stores one document. created is false for already known bytes.
type Ingester interface {
	Ingest(ctx context.Context, content []byte, attrs domdoc.Attributes, objects []string) (
		doc domdoc.Document, created bool, err error,
	)
}

// DocumentDeleter deletes one document and its point.
type DocumentDeleter interface {
	Delete(ctx context.Context, id string) error
}
