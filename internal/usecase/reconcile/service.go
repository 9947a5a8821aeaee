// Package reconcile repairs drift between the document store and the vector index.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
	"github.com/kailas-cloud/imgdex/internal/logger"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

// Defaults for Options.
const (
	DefaultCandidateLimit = 100_000
	DefaultStoreTimeout   = 10 * time.Second
)

// Options tune one synchronizer.
type Options struct {
	// CandidateLimit caps how many sync candidates one pass inspects.
	CandidateLimit int
	// StoreTimeout bounds each document store and vector index call of a repair.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	return o
}

// Report counts what a pass did. Repaired and Unrepaired are totals over the kinds.
type Report struct {
	RunID          string
	Checked        int
	Upserted       int
	Reprocessed    int
	OrphansDeleted int
	Collisions     int
	Failed         int
	// Truncated is set when more sync candidates exist than CandidateLimit;
	// the rest wait for the next pass.
	Truncated bool
	// AwaitingEmbedding counts documents the pipeline has not embedded yet,
	// up to CandidateLimit. They are not drift.
	AwaitingEmbedding int
	// Problems holds one line per unrepaired item.
	Problems []string
}

// Repaired returns the number of fixed items.
func (r Report) Repaired() int { return r.Upserted + r.Reprocessed + r.OrphansDeleted }

// Unrepaired returns the number of items left inconsistent.
func (r Report) Unrepaired() int { return r.Collisions + r.Failed }

// Service is the synchronizer.
type Service struct {
	docs    DocumentStore
	vectors VectorIndex
	proc    Processor
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a synchronizer. Zero options take the defaults.
func New(docs DocumentStore, vectors VectorIndex, proc Processor, opts Options, logger *zap.Logger) *Service {
	return &Service{
		docs:    docs,
		vectors: vectors,
		proc:    proc,
		opts:    opts.withDefaults(),
		now:     time.Now,
		logger:  logger,
	}
}

// Reconcile runs one repair pass. Item failures are counted in the report;
// only a failure to list either side returns an error.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	ctx, log := logger.With(ctx, s.logger, zap.String("reconcile_id", rep.RunID))

	refs, err := s.vectors.ListPoints(ctx)
	if err != nil {
		return rep, fmt.Errorf("list points: %w", err)
	}
	points := make(map[uint64]domvec.Ref, len(refs))
	for _, r := range refs {
		points[r.ID] = r
	}

	limit := s.opts.CandidateLimit
	candidates, err := s.docs.FindSyncCandidates(ctx, limit+1)
	if err != nil {
		return rep, fmt.Errorf("find sync candidates: %w", err)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
		rep.Truncated = true
		log.Warn("Sync candidates truncated", zap.Int("candidate_limit", limit))
	}
	for _, id := range candidates {
		if ctx.Err() != nil {
			return rep, fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
		}
		rep.Checked++
		s.repairDocument(ctx, log, id, points, &rep)
	}

	ids, err := s.docs.ListAllIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("list documents: %w", err)
	}
	s.deleteOrphans(ctx, log, ids, refs, &rep)

	missing, err := s.docs.FindMissingEmbeddings(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("find missing embeddings: %w", err)
	}
	rep.AwaitingEmbedding = len(missing)

	log.Info("Reconcile finished",
		zap.Int("checked", rep.Checked),
		zap.Int("repaired", rep.Repaired()),
		zap.Int("unrepaired", rep.Unrepaired()),
		zap.Int("orphans_deleted", rep.OrphansDeleted),
		zap.Int("collisions", rep.Collisions),
		zap.Int("awaiting_embedding", rep.AwaitingEmbedding),
		zap.Bool("truncated", rep.Truncated),
	)
	return rep, nil
}

// repairDocument makes sure a processed or sync-flagged document has its point.
func (s *Service) repairDocument(
	ctx context.Context, log *zap.Logger, id string, points map[uint64]domvec.Ref, rep *Report,
) {
	var doc domdoc.Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.docs.Get(ctx, id)
		return err
	})
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return
	}
	if err != nil {
		s.failed(log, rep, domdoc.ShortID(id), "load", err)
		return
	}

	pid := doc.PointID()
	ref, exists := points[pid]
	if exists && ref.ShortID != "" && ref.ShortID != doc.ShortID() {
		cerr := &domain.CollisionError{PointID: pid, DocumentShort: doc.ShortID(), PayloadShortID: ref.ShortID}
		rep.Collisions++
		rep.Problems = append(rep.Problems, cerr.Error())
		metrics.ReconcileRepairsTotal.WithLabelValues("collision").Inc()
		log.Error("Point id collision", zap.String("doc", doc.ShortID()), zap.Error(cerr))
		return
	}
	if exists && doc.Processed() && !doc.NeedsSync() {
		return
	}

	if !doc.HasEmbedding() {
		s.reprocess(ctx, log, &doc, rep)
		return
	}

	point, err := doc.Point()
	if err != nil {
		s.failed(log, rep, doc.ShortID(), "build point", err)
		return
	}
	if err := s.call(ctx, func(ctx context.Context) error { return s.vectors.Upsert(ctx, &point) }); err != nil {
		s.failed(log, rep, doc.ShortID(), "upsert point", err)
		return
	}
	done, err := doc.MarkProcessed(s.now())
	if err != nil {
		s.failed(log, rep, doc.ShortID(), "mark processed", err)
		return
	}
	if err := s.call(ctx, func(ctx context.Context) error { _, err := s.docs.Upsert(ctx, &done); return err }); err != nil {
		s.failed(log, rep, doc.ShortID(), "mark processed", err)
		return
	}
	rep.Upserted++
	metrics.ReconcileRepairsTotal.WithLabelValues("upserted").Inc()
	log.Debug("Point restored from stored embedding", zap.String("doc", doc.ShortID()))
}

// reprocess routes a document without a stored embedding back through the pipeline.
func (s *Service) reprocess(ctx context.Context, log *zap.Logger, doc *domdoc.Document, rep *Report) {
	if doc.Processed() {
		reset := doc.Reset()
		if err := s.call(ctx, func(ctx context.Context) error { _, err := s.docs.Upsert(ctx, &reset); return err }); err != nil {
			s.failed(log, rep, doc.ShortID(), "reset", err)
			return
		}
	}
	res := s.proc.ProcessOne(ctx, doc.ID())
	switch res.Status() {
	case dombatch.StatusSucceeded, dombatch.StatusSkipped:
		rep.Reprocessed++
		metrics.ReconcileRepairsTotal.WithLabelValues("reprocessed").Inc()
	default:
		s.failed(log, rep, doc.ShortID(), "reprocess", res.Err())
	}
}

// deleteOrphans removes points no stored document derives.
func (s *Service) deleteOrphans(
	ctx context.Context, log *zap.Logger, ids []string, refs []domvec.Ref, rep *Report,
) {
	claimed := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		claimed[domdoc.PointID(domdoc.ShortID(id))] = struct{}{}
	}

	for _, ref := range refs {
		if _, ok := claimed[ref.ID]; ok {
			continue
		}
		if err := s.call(ctx, func(ctx context.Context) error { return s.vectors.Delete(ctx, ref.ID) }); err != nil {
			s.failed(log, rep, fmt.Sprintf("point %d", ref.ID), "delete orphan", err)
			continue
		}
		rep.OrphansDeleted++
		metrics.ReconcileRepairsTotal.WithLabelValues("orphan_deleted").Inc()
		log.Debug("Orphan point deleted", zap.Uint64("point_id", ref.ID), zap.String("short_id", ref.ShortID))
	}
}

// call runs one repair call under StoreTimeout, so a hung backend fails the item instead of the pass.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer within %s: %w", domain.ErrStore, s.opts.StoreTimeout, err)
	}
	return err
}

func (s *Service) failed(log *zap.Logger, rep *Report, item, stage string, err error) {
	rep.Failed++
	rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %s: %v", item, stage, err))
	metrics.ReconcileRepairsTotal.WithLabelValues("failed").Inc()
	log.Warn("Reconcile item failed", zap.String("item", item), zap.String("stage", stage), zap.Error(err))
}

// Run reconciles every interval until ctx is done. Pass errors are logged, never fatal.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Periodic reconcile failed", zap.Error(err))
			}
		}
	}
}
