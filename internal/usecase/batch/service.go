package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/imgdex/internal/domain"
	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

// MaxBatchSize is the maximum number of items per batch request.
const MaxBatchSize = 100

// Item is one file to ingest.
type Item struct {
	Content    []byte
	Attributes domdoc.Attributes
	Objects    []string
}

// Service handles batch document operations with per-item error reporting.
type Service struct {
	docs         Ingester
	del          DocumentDeleter
	maxBatchSize int
}

// New creates a batch service.
func New(docs Ingester, del DocumentDeleter) *Service {
	return &Service{docs: docs, del: del, maxBatchSize: MaxBatchSize}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Ingest stores items one by one. Known bytes are reported as skipped.
// A store outage fails the remaining items without contacting the store again.
func (s *Service) Ingest(ctx context.Context, items []Item) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	if len(items) > s.maxBatchSize {
		for i, item := range items {
			results[i] = dombatch.NewFailed(
				itemLabel(item),
				fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation),
			)
		}
		return results
	}

	for i, item := range items {
		doc, created, err := s.docs.Ingest(ctx, item.Content, item.Attributes, item.Objects)
		if err != nil {
			results[i] = dombatch.NewFailed(itemLabel(item), err)
			if errors.Is(err, domain.ErrStore) {
				for j := i + 1; j < len(items); j++ {
					results[j] = dombatch.NewFailed(itemLabel(items[j]), err)
				}
				return results
			}
			continue
		}
		if !created {
			results[i] = dombatch.NewSkipped(doc.ID())
			continue
		}
		results[i] = dombatch.NewSucceeded(doc.ID())
	}

	return results
}

// Delete removes documents by ID in batch.
func (s *Service) Delete(ctx context.Context, ids []string) []dombatch.Result {
	results := make([]dombatch.Result, len(ids))

	if len(ids) > s.maxBatchSize {
		for i, id := range ids {
			results[i] = dombatch.NewFailed(id, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation))
		}
		return results
	}

	for i, id := range ids {
		if err := s.del.Delete(ctx, id); err != nil {
			results[i] = dombatch.NewFailed(id, fmt.Errorf("delete: %w", err))
			continue
		}
		results[i] = dombatch.NewSucceeded(id)
	}

	return results
}

// itemLabel identifies an item that has no id yet.
func itemLabel(item Item) string {
	if len(item.Content) == 0 {
		return item.Attributes.Name
	}
	return domdoc.ContentID(item.Content)
}
