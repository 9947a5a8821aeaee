package document

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/logger"
)

// Service handles document ingest, lookup, listing and removal.
type Service struct {
	repo            Repository
	points          PointDeleter
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// New creates a document service.
func New(repo Repository, points PointDeleter, logger *zap.Logger) *Service {
	return &Service{
		repo:            repo,
		points:          points,
		defaultPageSize: 20,
		maxPageSize:     100,
		logger:          logger,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Ingest stores a new unprocessed document keyed by the SHA-512 of content.
// Identical bytes return the stored document unchanged with created=false.
func (s *Service) Ingest(
	ctx context.Context, content []byte, attrs domdoc.Attributes, objects []string,
) (domdoc.Document, bool, error) {
	doc, err := domdoc.New(content, attrs, objects)
	if err != nil {
		return domdoc.Document{}, false, err
	}

	existing, err := s.repo.Get(ctx, doc.ID())
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return domdoc.Document{}, false, fmt.Errorf("lookup document: %w", err)
	}

	if _, err := s.repo.Upsert(ctx, &doc); err != nil {
		return domdoc.Document{}, false, fmt.Errorf("store document: %w", err)
	}
	_, log := logger.With(ctx, s.logger)
	log.Debug("Document ingested", zap.String("doc", doc.ShortID()), zap.String("name", doc.Name()))
	return doc, true, nil
}

// Get retrieves a document by id.
func (s *Service) Get(ctx context.Context, id string) (domdoc.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns a page of documents ordered by id. cursor is the last id of the previous page.
func (s *Service) List(ctx context.Context, cursor string, limit int) ([]domdoc.Document, string, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	ids, err := s.repo.ListAllIDs(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	start := 0
	if cursor != "" {
		start = sort.SearchStrings(ids, cursor)
		if start < len(ids) && ids[start] == cursor {
			start++
		}
	}
	end := min(start+limit, len(ids))
	page := ids[start:end]
	if len(page) == 0 {
		return []domdoc.Document{}, "", nil
	}

	docs, err := s.repo.GetMany(ctx, page)
	if err != nil {
		return nil, "", fmt.Errorf("load documents: %w", err)
	}
	next := ""
	if end < len(ids) {
		next = page[len(page)-1]
	}
	return docs, next, nil
}

// Delete removes the document, then its point. A failed point delete leaves an
// orphan for the synchronizer and does not fail the call.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	pid := domdoc.PointID(domdoc.ShortID(id))
	if err := s.points.Delete(ctx, pid); err != nil {
		_, log := logger.With(ctx, s.logger)
		log.Warn("Point delete failed, left for reconcile",
			zap.String("doc", domdoc.ShortID(id)), zap.Uint64("point_id", pid), zap.Error(err))
	}
	return nil
}

// Suggest returns distinct document names starting with prefix.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, s.maxPageSize)
	names, err := s.repo.Suggest(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	return names, nil
}
