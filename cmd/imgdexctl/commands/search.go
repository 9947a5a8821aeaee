package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imgdex/internal/app"
	"github.com/kailas-cloud/imgdex/internal/config"
	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	"github.com/kailas-cloud/imgdex/internal/domain/search/mode"
	"github.com/kailas-cloud/imgdex/internal/domain/search/request"
	"github.com/kailas-cloud/imgdex/internal/domain/search/result"
)

type searchOptions struct {
	mode      string
	limit     int
	threshold float64
	place     string
	objects   []string
	after     string
	before    string
	near      []float64
	radius    float64
}

type hitOutput struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Path        string   `json:"path,omitempty" yaml:"path,omitempty"`
	Score       float64  `json:"score" yaml:"score"`
	Lexical     *float64 `json:"lexical_score,omitempty" yaml:"lexical_score,omitempty"`
	Vector      *float64 `json:"vector_score,omitempty" yaml:"vector_score,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

type searchOutput struct {
	Items []hitOutput `json:"items" yaml:"items"`
	Total int         `json:"total" yaml:"total"`
}

func newSearchCmd(g *globals) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search the corpus",
		Long: `Search by text, by meaning or both.

Modes:
  lexical  full-text over names, descriptions, objects and places
  vector   cosine similarity of the query embedding
  hybrid   weighted blend of both (default)

A lexical search may omit the query to browse by filters alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(ctx context.Context, a *app.App, _ *config.Config) error {
				results, err := a.Search.Search(ctx, &req)
				if err != nil {
					return err
				}
				return g.output(cmd.OutOrStdout(), toSearchOutput(results))
			})
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", string(mode.Hybrid), "lexical, vector or hybrid")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", request.DefaultLimit, "maximum results")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum vector similarity (0-1)")
	cmd.Flags().StringVar(&opts.place, "place", "", "match any place name")
	cmd.Flags().StringSliceVar(&opts.objects, "objects", nil, "require every object label")
	cmd.Flags().StringVar(&opts.after, "after", "", "captured on or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().Float64SliceVar(&opts.near, "near", nil, "capture location as lat,lon")
	cmd.Flags().Float64Var(&opts.radius, "radius", 1000, "radius around --near in meters")
	cmd.Flags().StringVar(&opts.before, "before", "", "captured on or before (YYYY-MM-DD or RFC3339)")
	return cmd
}

func (o *searchOptions) request(text string) (request.Request, error) {
	criteria := filter.Criteria{Place: o.place, Objects: o.objects}
	var err error
	if criteria.CapturedAfter, err = optionalDate("--after", o.after); err != nil {
		return request.Request{}, err
	}
	if criteria.CapturedBefore, err = optionalDate("--before", o.before); err != nil {
		return request.Request{}, err
	}
	if len(o.near) > 0 {
		if len(o.near) != 2 {
			return request.Request{}, fmt.Errorf("--near: want lat,lon")
		}
		criteria.Near = &filter.Near{Lat: o.near[0], Lon: o.near[1], RadiusMeters: o.radius}
	}
	return request.New(text, mode.Mode(o.mode), o.limit, o.threshold, criteria)
}

func optionalDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	return &t, nil
}

func toSearchOutput(results []result.Result) searchOutput {
	out := searchOutput{Items: make([]hitOutput, 0, len(results)), Total: len(results)}
	for _, r := range results {
		doc := r.Document()
		out.Items = append(out.Items, hitOutput{
			ID:          r.ID(),
			Name:        doc.Name(),
			Path:        doc.Attributes().Path,
			Score:       r.Score(),
			Lexical:     r.LexicalScore(),
			Vector:      r.VectorScore(),
			Description: doc.Description(),
		})
	}
	return out
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and their vector points",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App, cfg *config.Config) error {
				var out batchOutput
				for _, part := range dombatch.Partition(ids, cfg.Documents.MaxBatchSize) {
					out.add(a.Batch.Delete(ctx, part))
				}
				return g.output(cmd.OutOrStdout(), out)
			})
		},
	}
}
