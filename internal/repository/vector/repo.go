// Package vector stores embedding points in a Redis HNSW index over hashes.
package vector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

const listChunk = 200

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	Ping(ctx context.Context) error
}

// Repo is a vector index backed by FT HNSW with cosine distance.
type Repo struct {
	store store
	opts  Options
}

// New creates a vector repository.
func New(s store, opts Options) *Repo {
	return &Repo{store: s, opts: opts.withDefaults()}
}

// EnsureIndex creates the HNSW index when missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return storeErr("index exists", err)
	}
	if exists {
		return nil
	}
	def, err := buildIndex(r.opts)
	if err != nil {
		return fmt.Errorf("%w: vector index definition: %w", domain.ErrValidation, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return storeErr("create index", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Upsert writes a point, replacing any previous value under the same id.
func (r *Repo) Upsert(ctx context.Context, p *domvec.Point) error {
	if r.opts.Dimensions > 0 && len(p.Vector) != r.opts.Dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d",
			domain.ErrValidation, len(p.Vector), r.opts.Dimensions)
	}
	if err := r.store.HSet(ctx, pointKey(p.ID), toFields(p)); err != nil {
		return storeErr(fmt.Sprintf("upsert %d", p.ID), err)
	}
	return nil
}

// Get returns the point stored under id. ok is false when it does not exist.
func (r *Repo) Get(ctx context.Context, id uint64) (p domvec.Point, ok bool, err error) {
	fields, err := r.store.HGetAll(ctx, pointKey(id))
	if err != nil {
		return domvec.Point{}, false, storeErr(fmt.Sprintf("get %d", id), err)
	}
	if len(fields) == 0 {
		return domvec.Point{}, false, nil
	}
	return domvec.Point{
		ID:      id,
		Vector:  bytesToVector(fields[fieldVector]),
		Payload: payloadFromFields(fields),
	}, true, nil
}

// Search returns up to limit nearest points with similarity >= minScore, best first.
func (r *Repo) Search(
	ctx context.Context, vec []float32, filters filter.Expression, limit int, minScore float64,
) ([]domvec.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:   indexName,
		VectorField: fieldVector,
		Filters:     filters,
		Vector:      vec,
		K:           limit,
		ReturnFields: []string{
			fieldShortID, fieldDocID, filter.FieldObjects, filter.FieldPlace,
			filter.FieldCapturedAt, filter.FieldWidth, filter.FieldHeight, fieldVersion,
		},
	})
	if err != nil {
		return nil, storeErr("knn", err)
	}
	if sr == nil {
		return nil, nil
	}

	hits := make([]domvec.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id, ok := idFromKey(e.Key)
		if !ok || e.Score < minScore {
			continue
		}
		hits = append(hits, domvec.Hit{ID: id, Score: e.Score, Payload: payloadFromFields(e.Fields)})
	}
	return hits, nil
}

// Delete removes a point. Deleting a missing point is not an error.
func (r *Repo) Delete(ctx context.Context, id uint64) error {
	if err := r.store.Del(ctx, pointKey(id)); err != nil {
		return storeErr(fmt.Sprintf("delete %d", id), err)
	}
	return nil
}

// ListPoints returns every stored point reference ordered by id.
func (r *Repo) ListPoints(ctx context.Context) ([]domvec.Ref, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, storeErr("scan", err)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	refs := make([]domvec.Ref, 0, len(keys))
	for chunk := range slices.Chunk(keys, listChunk) {
		maps, err := r.store.HGetAllMulti(ctx, chunk)
		if err != nil {
			return nil, storeErr("list", err)
		}
		for i, m := range maps {
			id, ok := idFromKey(chunk[i])
			if !ok || len(m) == 0 {
				continue
			}
			refs = append(refs, domvec.Ref{ID: id, ShortID: m[fieldShortID], DocID: m[fieldDocID]})
		}
	}
	slices.SortFunc(refs, func(a, b domvec.Ref) int { return cmp.Compare(a.ID, b.ID) })
	return refs, nil
}

// Count returns the number of indexed points.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName, "*")
	if err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: vector %s: %w", domain.ErrStore, op, err)
}
