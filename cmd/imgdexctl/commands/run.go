package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imgdex/internal/app"
	"github.com/kailas-cloud/imgdex/internal/config"
	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/usecase/pipeline"
	"github.com/kailas-cloud/imgdex/internal/usecase/reconcile"
	"github.com/kailas-cloud/imgdex/internal/usecase/stats"
)

type failureOutput struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

type runOutput struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Succeeded  int             `json:"succeeded" yaml:"succeeded"`
	Skipped    int             `json:"skipped" yaml:"skipped"`
	Failed     []failureOutput `json:"failed" yaml:"failed"`
	Canceled   bool            `json:"canceled" yaml:"canceled"`
	Batches    int             `json:"batches" yaml:"batches"`
	DurationMs int64           `json:"duration_ms" yaml:"duration_ms"`
}

type reconcileOutput struct {
	RunID          string   `json:"run_id" yaml:"run_id"`
	Checked        int      `json:"checked" yaml:"checked"`
	Upserted       int      `json:"upserted" yaml:"upserted"`
	Reprocessed    int      `json:"reprocessed" yaml:"reprocessed"`
	OrphansDeleted int      `json:"orphans_deleted" yaml:"orphans_deleted"`
	Collisions     int      `json:"collisions" yaml:"collisions"`
	Repaired       int      `json:"repaired" yaml:"repaired"`
	Unrepaired     int      `json:"unrepaired" yaml:"unrepaired"`
	Truncated      bool     `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Awaiting       int      `json:"awaiting_embedding" yaml:"awaiting_embedding"`
	Problems       []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

type statsOutput struct {
	Total         int     `json:"total" yaml:"total"`
	Processed     int     `json:"processed" yaml:"processed"`
	WithEmbedding int     `json:"with_embedding" yaml:"with_embedding"`
	Pending       int     `json:"pending" yaml:"pending"`
	NeedsSync     int     `json:"needs_sync" yaml:"needs_sync"`
	Vectors       int     `json:"vectors" yaml:"vectors"`
	Synced        bool    `json:"synced" yaml:"synced"`
	Completeness  float64 `json:"completeness" yaml:"completeness"`
}

type syncOutput struct {
	Pipeline  runOutput       `json:"pipeline" yaml:"pipeline"`
	Reconcile reconcileOutput `json:"reconcile" yaml:"reconcile"`
	Stats     statsOutput     `json:"stats" yaml:"stats"`
}

func newRunCmd(g *globals) *cobra.Command {
	var p pipeline.Params
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Describe and embed pending documents",
		Long: `Run the indexing pipeline once.

Pending documents are described by the vision model, embedded, written to the
vector index and marked processed. Flags left at zero use the configured
defaults. Interrupting the command stops it between documents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App, _ *config.Config) error {
				rep, err := a.Pipeline.RunBatch(ctx, p)
				if err != nil && !errors.Is(err, domain.ErrCanceled) {
					return err
				}
				return g.output(cmd.OutOrStdout(), toRunOutput(rep))
			})
		},
	}
	cmd.Flags().IntVar(&p.BatchSize, "batch-size", 0, "documents per batch")
	cmd.Flags().IntVar(&p.MaxDocuments, "max", 0, "maximum documents to process")
	cmd.Flags().IntVar(&p.Concurrency, "concurrency", 0, "documents processed in parallel")
	return cmd
}

func newReconcileCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between documents and the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App, _ *config.Config) error {
				rep, err := a.Reconcile.Reconcile(ctx)
				if err != nil {
					return err
				}
				return g.output(cmd.OutOrStdout(), toReconcileOutput(rep))
			})
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	var p pipeline.Params
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index pending documents, reconcile and report stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App, _ *config.Config) error {
				rep, err := a.Maintenance.SyncAll(ctx, p)
				if err != nil && !errors.Is(err, domain.ErrCanceled) {
					return err
				}
				return g.output(cmd.OutOrStdout(), syncOutput{
					Pipeline:  toRunOutput(rep.Pipeline),
					Reconcile: toReconcileOutput(rep.Reconcile),
					Stats:     toStatsOutput(rep.Stats),
				})
			})
		},
	}
	cmd.Flags().IntVar(&p.BatchSize, "batch-size", 0, "documents per batch")
	cmd.Flags().IntVar(&p.MaxDocuments, "max", 0, "maximum documents to process")
	cmd.Flags().IntVar(&p.Concurrency, "concurrency", 0, "documents processed in parallel")
	return cmd
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show indexing progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App, _ *config.Config) error {
				st, err := a.Stats.Stats(ctx)
				if err != nil {
					return err
				}
				return g.output(cmd.OutOrStdout(), toStatsOutput(st))
			})
		},
	}
}

func toRunOutput(rep pipeline.Report) runOutput {
	out := runOutput{
		RunID:      rep.RunID,
		Succeeded:  len(rep.Succeeded),
		Skipped:    len(rep.Skipped),
		Failed:     make([]failureOutput, 0, len(rep.Failed)),
		Canceled:   rep.Canceled,
		Batches:    rep.Batches,
		DurationMs: rep.Duration.Milliseconds(),
	}
	for _, f := range rep.Failed {
		out.Failed = append(out.Failed, failureOutput{ID: f.ID, Reason: f.Reason})
	}
	return out
}

func toReconcileOutput(rep reconcile.Report) reconcileOutput {
	return reconcileOutput{
		RunID:          rep.RunID,
		Checked:        rep.Checked,
		Upserted:       rep.Upserted,
		Reprocessed:    rep.Reprocessed,
		OrphansDeleted: rep.OrphansDeleted,
		Collisions:     rep.Collisions,
		Repaired:       rep.Repaired(),
		Unrepaired:     rep.Unrepaired(),
		Truncated:      rep.Truncated,
		Awaiting:       rep.AwaitingEmbedding,
		Problems:       rep.Problems,
	}
}

func toStatsOutput(st stats.Stats) statsOutput {
	return statsOutput(st)
}
