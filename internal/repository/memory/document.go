// Package memory provides in-process document and vector stores for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
)

// textDoc is what bleve indexes for lexical search.
type textDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Objects     string `json:"objects"`
	Place       string `json:"place"`
}

var textFields = []string{"name", "description", "objects", "place"}

// Documents is a document store held in memory with a bleve text index.
type Documents struct {
	mu    sync.RWMutex
	docs  map[string]domdoc.Document
	index bleve.Index
}

// NewDocuments creates an empty store.
func NewDocuments() (*Documents, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}
	return &Documents{docs: make(map[string]domdoc.Document), index: idx}, nil
}

// EnsureIndex is a no-op; the index exists from construction.
func (d *Documents) EnsureIndex(context.Context) error { return nil }

// Ping always succeeds.
func (d *Documents) Ping(context.Context) error { return nil }

// Close releases the text index.
func (d *Documents) Close() error { return d.index.Close() }

// Upsert creates or replaces a document. Returns true if created.
func (d *Documents) Upsert(_ context.Context, doc *domdoc.Document) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, exists := d.docs[doc.ID()]
	if err := d.index.Index(doc.ID(), toTextDoc(doc)); err != nil {
		return false, storeErr("index "+doc.ShortID(), err)
	}
	d.docs[doc.ID()] = *doc
	return !exists, nil
}

// Get returns a document by ID.
func (d *Documents) Get(_ context.Context, id string) (domdoc.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[id]
	if !ok {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// GetMany returns the documents that exist among ids, in input order.
func (d *Documents) GetMany(_ context.Context, ids []string) ([]domdoc.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domdoc.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Delete removes a document.
func (d *Documents) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	if err := d.index.Delete(id); err != nil {
		return storeErr("unindex", err)
	}
	delete(d.docs, id)
	return nil
}

// Query runs a bleve match query over the text fields and applies filters in process.
// An empty text matches every document with score 1.
func (d *Documents) Query(
	_ context.Context, text string, filters filter.Expression, limit int,
) ([]domdoc.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return d.browse(filters, limit), nil
	}

	queries := make([]query.Query, 0, len(textFields))
	for _, f := range textFields {
		q := bleve.NewMatchQuery(text)
		q.SetField(f)
		queries = append(queries, q)
	}
	// filters are applied after scoring, so fetch every candidate
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), len(d.docs)+1, 0, false)
	res, err := d.index.Search(req)
	if err != nil {
		return nil, storeErr("text search", err)
	}

	hits := make([]domdoc.Hit, 0, min(limit, len(res.Hits)))
	for _, h := range res.Hits {
		doc, ok := d.docs[h.ID]
		if !ok || !filters.Eval(doc.Subject()) {
			continue
		}
		hits = append(hits, domdoc.Hit{ID: h.ID, Score: h.Score})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (d *Documents) browse(filters filter.Expression, limit int) []domdoc.Hit {
	var hits []domdoc.Hit
	for _, id := range d.sortedIDs() {
		doc := d.docs[id]
		if !filters.Eval(doc.Subject()) {
			continue
		}
		hits = append(hits, domdoc.Hit{ID: id, Score: 1})
		if len(hits) == limit {
			break
		}
	}
	return hits
}

// FindUnprocessed returns up to limit ids of unprocessed documents, ordered by id.
func (d *Documents) FindUnprocessed(_ context.Context, limit int) ([]string, error) {
	return d.selectIDs(limit, func(doc *domdoc.Document) bool { return !doc.Processed() }), nil
}

// FindMissingEmbeddings returns up to limit ids of documents without an embedding.
func (d *Documents) FindMissingEmbeddings(_ context.Context, limit int) ([]string, error) {
	return d.selectIDs(limit, func(doc *domdoc.Document) bool { return !doc.HasEmbedding() }), nil
}

// FindSyncCandidates returns up to limit ids of processed or sync-flagged documents.
func (d *Documents) FindSyncCandidates(_ context.Context, limit int) ([]string, error) {
	return d.selectIDs(limit, func(doc *domdoc.Document) bool { return doc.Processed() || doc.NeedsSync() }), nil
}

func (d *Documents) selectIDs(limit int, keep func(*domdoc.Document) bool) []string {
	if limit <= 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, id := range d.sortedIDs() {
		doc := d.docs[id]
		if keep(&doc) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids
}

// ListAllIDs returns every stored id, sorted.
func (d *Documents) ListAllIDs(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedIDs(), nil
}

// Counts returns document totals by processing state.
func (d *Documents) Counts(context.Context) (domdoc.Counts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c := domdoc.Counts{Total: len(d.docs)}
	for _, doc := range d.docs {
		if doc.Processed() {
			c.Processed++
		}
		if doc.HasEmbedding() {
			c.WithEmbedding++
		}
		if doc.NeedsSync() {
			c.NeedsSync++
		}
	}
	return c, nil
}

// Suggest returns up to limit distinct names starting with prefix, case-insensitively, sorted.
func (d *Documents) Suggest(_ context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for _, doc := range d.docs {
		if strings.HasPrefix(strings.ToLower(doc.Name()), prefix) {
			names = append(names, doc.Name())
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// sortedIDs requires d.mu held.
func (d *Documents) sortedIDs() []string {
	ids := make([]string, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func toTextDoc(doc *domdoc.Document) textDoc {
	return textDoc{
		Name:        doc.Name(),
		Description: doc.Description(),
		Objects:     strings.Join(doc.Objects(), " "),
		Place:       doc.Attributes().Place.String(),
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: memory %s: %w", domain.ErrStore, op, err)
}
