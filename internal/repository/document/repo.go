package document

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

// store is the consumer interface for documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	Ping(ctx context.Context) error
}

// Repo is the Redis document store: RedisJSON records plus an FT index.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the search index when missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return storeErr("index exists", err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, buildIndex()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return storeErr("create index", err)
	}
	return nil
}

// Ping checks connectivity of the underlying store.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Upsert creates or replaces a document. Returns true if created.
func (r *Repo) Upsert(ctx context.Context, doc *domdoc.Document) (bool, error) {
	key := docKey(doc.ID())
	data, err := marshalDoc(doc)
	if err != nil {
		return false, err
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, storeErr("exists "+key, err)
	}

	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return false, storeErr("json.set "+key, err)
	}

	return !exists, nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	key := docKey(id)
	raw, err := r.store.JSONGet(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, storeErr("json.get "+key, err)
	}
	return unmarshalDoc(raw)
}

// GetMany returns the documents that exist among ids, in input order.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]domdoc.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}

	raws, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return nil, storeErr("json.get multi", err)
	}

	docs := make([]domdoc.Document, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		doc, err := unmarshalDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes a document.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := docKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return storeErr("exists "+key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return storeErr("del "+key, err)
	}
	return nil
}

// Query runs a BM25 search over name, description, objects and place names.
// Scores are native and not normalized.
func (r *Repo) Query(
	ctx context.Context, text string, filters filter.Expression, limit int,
) ([]domdoc.Hit, error) {
	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    indexName,
		Query:        text,
		Fields:       textFields,
		Filters:      filters,
		TopK:         limit,
		ReturnFields: []string{"id"},
	})
	if err != nil {
		return nil, storeErr("text search", err)
	}
	if sr == nil {
		return nil, nil
	}

	hits := make([]domdoc.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, domdoc.Hit{ID: idFromKey(e.Key), Score: e.Score})
	}
	return hits, nil
}

// FindUnprocessed returns up to limit ids of unprocessed documents, ordered by id.
func (r *Repo) FindUnprocessed(ctx context.Context, limit int) ([]string, error) {
	return r.listIDs(ctx, "@processed:{false}", limit)
}

// FindMissingEmbeddings returns up to limit ids of documents without an embedding, ordered by id.
func (r *Repo) FindMissingEmbeddings(ctx context.Context, limit int) ([]string, error) {
	return r.listIDs(ctx, "@has_embedding:{false}", limit)
}

// FindSyncCandidates returns up to limit ids of documents that must have a point:
// processed ones and ones flagged for sync.
func (r *Repo) FindSyncCandidates(ctx context.Context, limit int) ([]string, error) {
	return r.listIDs(ctx, "(@processed:{true})|(@needs_sync:{true})", limit)
}

func (r *Repo) listIDs(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName: indexName,
		Query:     query,
		Limit:     limit,
		Fields:    []string{"id"},
		SortBy:    "id",
	})
	if err != nil {
		return nil, storeErr("list "+query, err)
	}
	if sr == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		ids = append(ids, idFromKey(e.Key))
	}
	return ids, nil
}

// ListAllIDs returns every stored document id, sorted.
func (r *Repo) ListAllIDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, storeErr("scan", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, idFromKey(k))
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Counts returns document totals by processing state.
func (r *Repo) Counts(ctx context.Context) (domdoc.Counts, error) {
	var c domdoc.Counts
	queries := []struct {
		query string
		dst   *int
	}{
		{"*", &c.Total},
		{"@processed:{true}", &c.Processed},
		{"@has_embedding:{true}", &c.WithEmbedding},
		{"@needs_sync:{true}", &c.NeedsSync},
	}
	for _, q := range queries {
		n, err := r.store.SearchCount(ctx, indexName, q.query)
		if err != nil {
			return domdoc.Counts{}, storeErr("count "+q.query, err)
		}
		*q.dst = n
	}
	return c, nil
}

// Suggest returns up to limit distinct document names starting with prefix.
func (r *Repo) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || limit <= 0 {
		return nil, nil
	}

	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName: indexName,
		Query:     "@name:" + escapePrefix(prefix) + "*",
		Limit:     limit * 4, // names repeat across duplicates of the same shot
		Fields:    []string{"name"},
		SortBy:    "name",
	})
	if err != nil {
		return nil, storeErr("suggest", err)
	}
	if sr == nil {
		return nil, nil
	}

	return distinctNames(sr.Entries, prefix, limit), nil
}

func distinctNames(entries []db.SearchEntry, prefix string, limit int) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, limit)
	lp := strings.ToLower(prefix)
	for _, e := range entries {
		name := e.Fields["name"]
		if name == "" || !strings.HasPrefix(strings.ToLower(name), lp) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}

var prefixEscaper = strings.NewReplacer(
	`\`, `\\`, `-`, `\-`, `.`, `\.`, `@`, `\@`, `(`, `\(`, `)`, `\)`,
	`{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`, `|`, `\|`, `*`, `\*`,
	`:`, `\:`, `"`, `\"`, `'`, `\'`, ` `, `\ `, `~`, `\~`, `%`, `\%`,
)

func escapePrefix(s string) string { return prefixEscaper.Replace(s) }

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: document %s: %w", domain.ErrStore, op, err)
}
