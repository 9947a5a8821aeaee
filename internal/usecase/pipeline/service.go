// Package pipeline turns unprocessed documents into described, embedded and indexed ones.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/logger"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

// Params bound one run. Zero values take the service defaults.
type Params struct {
	BatchSize    int
	MaxDocuments int
	Concurrency  int
}

// Options are the service defaults and the store retry policy.
type Options struct {
	Params
	// Attempts for document store and vector index writes. Model calls retry in the gateway.
	Attempts    int
	BaseBackoff time.Duration
	// StoreTimeout bounds each document store and vector index call. Workers ignore
	// caller cancellation, so a hung backend surfaces only through this deadline.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxDocuments <= 0 {
		o.MaxDocuments = 1000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	return o
}

// Report is the outcome of a RunBatch call.
type Report struct {
	RunID string
	dombatch.Summary
	Batches  int
	Duration time.Duration
}

// Service is the embedding pipeline.
type Service struct {
	docs    DocumentStore
	vectors VectorIndex
	gw      Gateway
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a pipeline.
func New(docs DocumentStore, vectors VectorIndex, gw Gateway, opts Options, logger *zap.Logger) *Service {
	return &Service{
		docs:    docs,
		vectors: vectors,
		gw:      gw,
		opts:    opts.withDefaults(),
		now:     time.Now,
		logger:  logger,
	}
}

// params fills zero fields from the service defaults. Negative fields are a caller error.
func (s *Service) params(p Params) (Params, error) {
	if p.BatchSize < 0 || p.MaxDocuments < 0 || p.Concurrency < 0 {
		return p, fmt.Errorf("%w: batch_size, max_documents and concurrency must not be negative, got %d, %d and %d",
			domain.ErrValidation, p.BatchSize, p.MaxDocuments, p.Concurrency)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = s.opts.BatchSize
	}
	if p.MaxDocuments <= 0 {
		p.MaxDocuments = s.opts.MaxDocuments
	}
	if p.Concurrency <= 0 {
		p.Concurrency = s.opts.Concurrency
	}
	return p, nil
}

// RunBatch processes up to MaxDocuments unprocessed documents, ordered by id, in batches of
// BatchSize with Concurrency workers. Per-document failures land in the report; only a failed
// selection or negative params return an error. Cancelling ctx stops between documents and returns the tally so far.
func (s *Service) RunBatch(ctx context.Context, p Params) (Report, error) {
	p, err := s.params(p)
	if err != nil {
		return Report{}, err
	}
	start := time.Now()
	runID := uuid.NewString()
	ctx, log := logger.With(ctx, s.logger, zap.String("run_id", runID))

	ids, err := s.docs.FindUnprocessed(ctx, p.MaxDocuments)
	if err != nil {
		return Report{RunID: runID}, fmt.Errorf("select unprocessed: %w", err)
	}

	batches := dombatch.Partition(ids, p.BatchSize)
	log.Info("Pipeline run started",
		zap.Int("documents", len(ids)),
		zap.Int("batches", len(batches)),
		zap.Int("concurrency", p.Concurrency),
	)

	tally := dombatch.NewTally()
	for i, batch := range batches {
		if ctx.Err() != nil {
			tally.Cancel()
			break
		}
		s.runOne(ctx, batch, p.Concurrency, tally)
		log.Debug("Batch finished", zap.Int("batch", i+1), zap.Int("size", len(batch)))
	}

	report := Report{
		RunID:    runID,
		Summary:  tally.Summary(),
		Batches:  len(batches),
		Duration: time.Since(start),
	}
	metrics.PipelineRunDuration.Observe(report.Duration.Seconds())
	log.Info("Pipeline run finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("canceled", report.Canceled),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// runOne fans a batch out to a bounded worker pool.
// Documents already started finish even if ctx is cancelled; no new ones start.
func (s *Service) runOne(ctx context.Context, ids []string, workers int, tally *dombatch.Tally) {
	jobs := make(chan string)
	var wg sync.WaitGroup

	for range min(workers, len(ids)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				res := s.ProcessOne(context.WithoutCancel(ctx), id)
				tally.Record(res)
				metrics.PipelineDocumentsTotal.WithLabelValues(string(res.Status())).Inc()
			}
		}()
	}

feed:
	for _, id := range ids {
		if ctx.Err() != nil {
			tally.Cancel()
			break
		}
		select {
		case <-ctx.Done():
			tally.Cancel()
			break feed
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()
}

// ProcessOne runs the single-document path: describe, embed, store, index, mark processed.
// The point is written before the processed flag, so a processed document always has its point.
func (s *Service) ProcessOne(ctx context.Context, id string) dombatch.Result {
	log := logger.FromContext(ctx).With(zap.String("doc", domdoc.ShortID(id)))

	var doc domdoc.Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.docs.Get(ctx, id)
		return err
	})
	if err != nil {
		return s.fail(log, id, "load", err)
	}
	if doc.Processed() {
		return dombatch.NewSkipped(id)
	}

	if !doc.HasEmbedding() {
		desc, err := s.gw.GenerateDescription(ctx, &doc)
		if err != nil {
			return s.fail(log, id, "describe", err)
		}
		vec, err := s.gw.Embed(ctx, desc)
		if err != nil {
			return s.fail(log, id, "embed", err)
		}

		// a concurrent run may have finished while the models were busy
		var current domdoc.Document
		err = s.call(ctx, func(ctx context.Context) error {
			var err error
			current, err = s.docs.Get(ctx, id)
			return err
		})
		if err == nil && current.Processed() {
			return dombatch.NewSkipped(id)
		}

		doc = doc.WithEmbedding(desc, vec)
		if err := s.withRetry(ctx, func(ctx context.Context) error { _, err := s.docs.Upsert(ctx, &doc); return err }); err != nil {
			return s.fail(log, id, "store embedding", err)
		}
	}

	point, err := doc.Point()
	if err != nil {
		return s.fail(log, id, "build point", err)
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error { return s.vectors.Upsert(ctx, &point) }); err != nil {
		return s.fail(log, id, "upsert point", err)
	}

	done, err := doc.MarkProcessed(s.now())
	if err != nil {
		return s.fail(log, id, "mark processed", err)
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error { _, err := s.docs.Upsert(ctx, &done); return err }); err != nil {
		// point exists, needsSync stays set; the synchronizer finishes the job
		return s.fail(log, id, "mark processed", err)
	}

	log.Debug("Document processed", zap.Uint64("point_id", point.ID))
	return dombatch.NewSucceeded(id)
}

func (s *Service) fail(log *zap.Logger, id, stage string, err error) dombatch.Result {
	log.Warn("Document failed", zap.String("stage", stage), zap.Error(err))
	return dombatch.NewFailed(id, fmt.Errorf("%s: %w", stage, err))
}

// call runs one storage call under StoreTimeout. An expired deadline is a store error,
// so withRetry treats it like any other transient backend failure.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer within %s: %w", domain.ErrStore, s.opts.StoreTimeout, err)
	}
	return err
}

// withRetry retries store writes that may heal, with quadratic backoff.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.opts.Attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * s.opts.BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
			case <-time.After(backoff):
			}
		}
		if err = s.call(ctx, fn); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStore) {
			return err
		}
	}
	return err
}
