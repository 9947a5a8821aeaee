package commands

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imgdex/internal/app"
	"github.com/kailas-cloud/imgdex/internal/config"
	dombatch "github.com/kailas-cloud/imgdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	batchuc "github.com/kailas-cloud/imgdex/internal/usecase/batch"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic"}

type ingestOptions struct {
	objects  []string
	city     string
	country  string
	captured string
	geo      []float64
}

type itemOutput struct {
	ID     string `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

type batchOutput struct {
	Items     []itemOutput `json:"items" yaml:"items"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Skipped   int          `json:"skipped" yaml:"skipped"`
	Failed    int          `json:"failed" yaml:"failed"`
}

func newIngestCmd(g *globals) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest <file-or-dir>...",
		Short: "Register image files",
		Long: `Register image files with the document store.

Directories are scanned one level deep for image extensions. Files already
known by content are reported as skipped. Registered files are pending until
'imgdexctl run' describes and embeds them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectImages(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no image files found")
			}
			return g.withApp(cmd, func(ctx context.Context, a *app.App, cfg *config.Config) error {
				out, err := ingestFiles(ctx, a.Batch, files, opts, cfg.Documents.MaxBatchSize)
				if err != nil {
					return err
				}
				return g.output(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.objects, "objects", nil, "detected object labels applied to every file")
	cmd.Flags().StringVar(&opts.city, "city", "", "city name applied to every file")
	cmd.Flags().StringVar(&opts.country, "country", "", "country name applied to every file")
	cmd.Flags().Float64SliceVar(&opts.geo, "geo", nil, "capture location as lat,lon applied to every file")
	cmd.Flags().StringVar(&opts.captured, "captured", "", "capture date (YYYY-MM-DD or RFC3339); defaults to file modification time")
	return cmd
}

// collectImages expands directories and keeps files with an image extension.
func collectImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}
		for _, e := range entries {
			if e.IsDir() || !isImage(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(arg, e.Name()))
		}
	}
	return files, nil
}

func isImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

func ingestFiles(ctx context.Context, svc *batchuc.Service, files []string, opts *ingestOptions, chunk int) (batchOutput, error) {
	var captured *time.Time
	if opts.captured != "" {
		t, err := parseDate(opts.captured)
		if err != nil {
			return batchOutput{}, fmt.Errorf("--captured: %w", err)
		}
		captured = &t
	}
	if len(opts.geo) != 0 && len(opts.geo) != 2 {
		return batchOutput{}, fmt.Errorf("--geo: want lat,lon")
	}
	if chunk <= 0 {
		chunk = batchuc.MaxBatchSize
	}

	var out batchOutput
	for _, part := range dombatch.Partition(files, chunk) {
		items := make([]batchuc.Item, 0, len(part))
		for _, path := range part {
			item, err := readItem(path, opts, captured)
			if err != nil {
				return batchOutput{}, err
			}
			items = append(items, item)
		}
		out.add(svc.Ingest(ctx, items))
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, nil
}

func readItem(path string, opts *ingestOptions, captured *time.Time) (batchuc.Item, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return batchuc.Item{}, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return batchuc.Item{}, fmt.Errorf("stat %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	attrs := domdoc.Attributes{
		Name:       filepath.Base(path),
		Path:       abs,
		SizeBytes:  info.Size(),
		CapturedAt: info.ModTime().UTC(),
		Place:      domdoc.Place{City: opts.city, Country: opts.country},
	}
	if captured != nil {
		attrs.CapturedAt = *captured
	}
	if len(opts.geo) == 2 {
		attrs.Geo = &domdoc.GeoPoint{Lat: opts.geo[0], Lon: opts.geo[1]}
	}
	// Unsupported formats keep zero dimensions.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		attrs.Width, attrs.Height = cfg.Width, cfg.Height
	}
	return batchuc.Item{Content: content, Attributes: attrs, Objects: opts.objects}, nil
}

func (o *batchOutput) add(results []dombatch.Result) {
	for _, r := range results {
		item := itemOutput{ID: r.ID(), Status: string(r.Status())}
		switch r.Status() {
		case dombatch.StatusSucceeded:
			o.Succeeded++
		case dombatch.StatusSkipped:
			o.Skipped++
		default:
			o.Failed++
			if r.Err() != nil {
				item.Error = r.Err().Error()
			}
		}
		o.Items = append(o.Items, item)
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
