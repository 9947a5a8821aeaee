// Package stats reports corpus progress across the document store and the vector index.
package stats

import (
	"context"
	"fmt"
	"math"
)

// Stats is a snapshot of indexing progress.
type Stats struct {
	Total         int
	Processed     int
	WithEmbedding int
	Pending       int
	NeedsSync     int
	Vectors       int
	// Synced is true when every embedded document has exactly one point.
	Synced bool
	// Completeness is the processed share in percent, rounded to two decimals. 0 for an empty corpus.
	Completeness float64
}

// Service computes Stats.
type Service struct {
	docs    DocumentCounter
	vectors PointCounter
}

// New creates a stats service.
func New(docs DocumentCounter, vectors PointCounter) *Service {
	return &Service{docs: docs, vectors: vectors}
}

// Stats reads both stores. Either failing fails the call.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	c, err := s.docs.Counts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	n, err := s.vectors.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count points: %w", err)
	}

	st := Stats{
		Total:         c.Total,
		Processed:     c.Processed,
		WithEmbedding: c.WithEmbedding,
		Pending:       max(c.Total-c.Processed, 0),
		NeedsSync:     c.NeedsSync,
		Vectors:       n,
		Synced:        c.WithEmbedding == n,
	}
	if c.Total > 0 {
		st.Completeness = math.Round(float64(c.Processed)/float64(c.Total)*10000) / 100
	}
	return st, nil
}
