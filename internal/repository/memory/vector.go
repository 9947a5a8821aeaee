package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// Vectors is a brute-force cosine vector index held in memory.
type Vectors struct {
	mu         sync.RWMutex
	points     map[uint64]domvec.Point
	dimensions int
}

// NewVectors creates an empty index. dimensions <= 0 accepts any length.
func NewVectors(dimensions int) *Vectors {
	return &Vectors{points: make(map[uint64]domvec.Point), dimensions: dimensions}
}

// EnsureIndex is a no-op.
func (v *Vectors) EnsureIndex(context.Context) error { return nil }

// Ping always succeeds.
func (v *Vectors) Ping(context.Context) error { return nil }

// Upsert stores a copy of the point.
func (v *Vectors) Upsert(_ context.Context, p *domvec.Point) error {
	if v.dimensions > 0 && len(p.Vector) != v.dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d",
			domain.ErrValidation, len(p.Vector), v.dimensions)
	}
	cp := *p
	cp.Vector = slices.Clone(p.Vector)

	v.mu.Lock()
	v.points[p.ID] = cp
	v.mu.Unlock()
	return nil
}

// Get returns the point stored under id.
func (v *Vectors) Get(_ context.Context, id uint64) (domvec.Point, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.points[id]
	return p, ok, nil
}

// Search scores every point and returns the best limit with similarity >= minScore.
func (v *Vectors) Search(
	_ context.Context, vec []float32, filters filter.Expression, limit int, minScore float64,
) ([]domvec.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	var hits []domvec.Hit
	for id, p := range v.points {
		if !filters.Eval(subjectOfPayload(p.Payload)) {
			continue
		}
		score := domvec.Cosine(vec, p.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, domvec.Hit{ID: id, Score: score, Payload: p.Payload})
	}
	slices.SortFunc(hits, func(a, b domvec.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes a point.
func (v *Vectors) Delete(_ context.Context, id uint64) error {
	v.mu.Lock()
	delete(v.points, id)
	v.mu.Unlock()
	return nil
}

// ListPoints returns every point reference ordered by id.
func (v *Vectors) ListPoints(context.Context) ([]domvec.Ref, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	refs := make([]domvec.Ref, 0, len(v.points))
	for id, p := range v.points {
		refs = append(refs, domvec.Ref{ID: id, ShortID: p.Payload.ShortID, DocID: p.Payload.DocID})
	}
	slices.SortFunc(refs, func(a, b domvec.Ref) int { return cmp.Compare(a.ID, b.ID) })
	return refs, nil
}

// Count returns the number of points.
func (v *Vectors) Count(context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.points), nil
}

func subjectOfPayload(p domvec.Payload) filter.Subject {
	return filter.Subject{
		Place:      p.Place,
		Objects:    p.Objects,
		CapturedAt: p.CapturedAt,
		Width:      p.Width,
		Height:     p.Height,
	}
}
