// Package maintenance chains the pipeline, the synchronizer and stats into one sync pass.
package maintenance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/usecase/pipeline"
	"github.com/kailas-cloud/imgdex/internal/usecase/reconcile"
	"github.com/kailas-cloud/imgdex/internal/usecase/stats"
)

// Pipeline runs embedding batches.
type Pipeline interface {
	RunBatch(ctx context.Context, p pipeline.Params) (pipeline.Report, error)
}

// Reconciler repairs drift.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Report, error)
}

// StatsReader snapshots progress.
type StatsReader interface {
	Stats(ctx context.Context) (stats.Stats, error)
}

// SyncReport is the combined outcome of SyncAll.
type SyncReport struct {
	Pipeline  pipeline.Report
	Reconcile reconcile.Report
	Stats     stats.Stats
}

// Service runs full sync passes.
type Service struct {
	pipeline  Pipeline
	reconcile Reconciler
	stats     StatsReader
	logger    *zap.Logger
}

// New creates a maintenance service.
func New(p Pipeline, r Reconciler, s StatsReader, logger *zap.Logger) *Service {
	return &Service{pipeline: p, reconcile: r, stats: s, logger: logger}
}

// SyncAll runs a pipeline batch, then reconciles, then reads stats.
// A canceled pipeline run stops the chain; per-document failures do not.
func (s *Service) SyncAll(ctx context.Context, p pipeline.Params) (SyncReport, error) {
	var rep SyncReport
	var err error

	rep.Pipeline, err = s.pipeline.RunBatch(ctx, p)
	if err != nil {
		return rep, fmt.Errorf("run batch: %w", err)
	}
	if rep.Pipeline.Canceled {
		return rep, fmt.Errorf("%w: sync interrupted after pipeline", domain.ErrCanceled)
	}
	rep.Reconcile, err = s.reconcile.Reconcile(ctx)
	if err != nil {
		return rep, fmt.Errorf("reconcile: %w", err)
	}
	rep.Stats, err = s.stats.Stats(ctx)
	if err != nil {
		return rep, fmt.Errorf("stats: %w", err)
	}

	s.logger.Info("Sync finished",
		zap.String("run_id", rep.Pipeline.RunID),
		zap.Int("succeeded", len(rep.Pipeline.Succeeded)),
		zap.Int("failed", len(rep.Pipeline.Failed)),
		zap.Int("repaired", rep.Reconcile.Repaired()),
		zap.Int("unrepaired", rep.Reconcile.Unrepaired()),
		zap.Bool("synced", rep.Stats.Synced),
	)
	return rep, nil
}
