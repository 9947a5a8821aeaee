// Package pgvector stores embedding points in Postgres with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// pool is the consumer interface satisfied by *pgxpool.Pool.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Options configures the table and its HNSW index.
type Options struct {
	Dimensions     int
	M              int
	EFConstruction int
}

// Repo is a vector index over a pgvector table.
type Repo struct {
	db   pool
	opts Options
}

// New creates a pgvector repository.
func New(db pool, opts Options) *Repo {
	if opts.M <= 0 {
		opts.M = 16
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = 64
	}
	return &Repo{db: db, opts: opts}
}

// EnsureIndex creates the extension, table and HNSW index when missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if r.opts.Dimensions <= 0 {
		return fmt.Errorf("%w: pgvector dimensions must be positive", domain.ErrValidation)
	}
	for _, stmt := range schemaStatements(r.opts) {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return storeErr("ensure schema", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
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

	var captured *time.Time
	if !p.Payload.CapturedAt.IsZero() {
		t := p.Payload.CapturedAt.UTC()
		captured = &t
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO `+tableName+` (id, short_id, doc_id, embedding, objects, place, captured_at, width, height, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET short_id = $2, doc_id = $3, embedding = $4, objects = $5,
		   place = $6, captured_at = $7, width = $8, height = $9, version = $10`,
		int64(p.ID), p.Payload.ShortID, p.Payload.DocID, pgvector.NewVector(p.Vector), //nolint:gosec // ids keep the top bit clear
		nonNil(p.Payload.Objects), nonNil(p.Payload.Place), captured,
		p.Payload.Width, p.Payload.Height, p.Payload.Version,
	)
	if err != nil {
		return storeErr(fmt.Sprintf("upsert %d", p.ID), err)
	}
	return nil
}

// Get returns the point stored under id. ok is false when it does not exist.
func (r *Repo) Get(ctx context.Context, id uint64) (p domvec.Point, ok bool, err error) {
	var (
		emb      pgvector.Vector
		captured *time.Time
	)
	p.ID = id
	err = r.db.QueryRow(ctx,
		`SELECT short_id, doc_id, embedding, objects, place, captured_at, width, height, version
		 FROM `+tableName+` WHERE id = $1`, int64(id), //nolint:gosec // ids keep the top bit clear
	).Scan(&p.Payload.ShortID, &p.Payload.DocID, &emb, &p.Payload.Objects, &p.Payload.Place,
		&captured, &p.Payload.Width, &p.Payload.Height, &p.Payload.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domvec.Point{}, false, nil
	}
	if err != nil {
		return domvec.Point{}, false, storeErr(fmt.Sprintf("get %d", id), err)
	}
	p.Vector = emb.Slice()
	if captured != nil {
		p.Payload.CapturedAt = captured.UTC()
	}
	return p, true, nil
}

// Search returns up to limit nearest points with similarity >= minScore, best first.
func (r *Repo) Search(
	ctx context.Context, vec []float32, filters filter.Expression, limit int, minScore float64,
) ([]domvec.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	w := &whereBuilder{}
	emb := w.arg(pgvector.NewVector(vec))
	where := w.build(filters)
	if where != "" {
		where = "WHERE " + where
	}
	lim := w.arg(limit)

	rows, err := r.db.Query(ctx,
		`SELECT id, short_id, doc_id, objects, place, captured_at, width, height, version,
		        1 - (embedding <=> `+emb+`) AS score
		 FROM `+tableName+` `+where+`
		 ORDER BY embedding <=> `+emb+`
		 LIMIT `+lim,
		w.args...,
	)
	if err != nil {
		return nil, storeErr("similarity search", err)
	}
	defer rows.Close()

	var hits []domvec.Hit
	for rows.Next() {
		var (
			h        domvec.Hit
			id       int64
			captured *time.Time
		)
		if err := rows.Scan(&id, &h.Payload.ShortID, &h.Payload.DocID, &h.Payload.Objects, &h.Payload.Place,
			&captured, &h.Payload.Width, &h.Payload.Height, &h.Payload.Version, &h.Score); err != nil {
			return nil, storeErr("scan result", err)
		}
		if h.Score < minScore {
			continue
		}
		h.ID = uint64(id) //nolint:gosec // stored ids are non-negative
		if captured != nil {
			h.Payload.CapturedAt = captured.UTC()
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("similarity search rows", err)
	}
	return hits, nil
}

// Delete removes a point. Deleting a missing point is not an error.
func (r *Repo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM `+tableName+` WHERE id = $1`, int64(id)); err != nil { //nolint:gosec // ids keep the top bit clear
		return storeErr(fmt.Sprintf("delete %d", id), err)
	}
	return nil
}

// ListPoints returns every stored point reference ordered by id.
func (r *Repo) ListPoints(ctx context.Context) ([]domvec.Ref, error) {
	rows, err := r.db.Query(ctx, `SELECT id, short_id, doc_id FROM `+tableName+` ORDER BY id`)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	var refs []domvec.Ref
	for rows.Next() {
		var (
			id  int64
			ref domvec.Ref
		)
		if err := rows.Scan(&id, &ref.ShortID, &ref.DocID); err != nil {
			return nil, storeErr("scan ref", err)
		}
		ref.ID = uint64(id) //nolint:gosec // stored ids are non-negative
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list rows", err)
	}
	return refs, nil
}

// Count returns the number of stored points.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM `+tableName).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: pgvector %s: %w", domain.ErrStore, op, err)
}
