package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/domain/search/mode"
	"github.com/kailas-cloud/imgdex/internal/domain/search/request"
	"github.com/kailas-cloud/imgdex/internal/domain/search/result"
	"github.com/kailas-cloud/imgdex/internal/logger"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

// Default hybrid weights.
const (
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
	// DefaultOversample multiplies the limit when fetching candidates, leaving room for the post-filter.
	DefaultOversample = 3
)

// Weights blend vector and lexical sub-scores in hybrid mode.
type Weights struct {
	Vector float64
	Text   float64
}

// Options configure the query engine.
type Options struct {
	Weights    Weights
	Oversample int
}

func (o Options) withDefaults() Options {
	if o.Weights.Vector == 0 && o.Weights.Text == 0 {
		o.Weights = Weights{Vector: DefaultVectorWeight, Text: DefaultTextWeight}
	}
	if o.Oversample <= 0 {
		o.Oversample = DefaultOversample
	}
	return o
}

// Service handles lexical, vector and hybrid search over the image corpus.
type Service struct {
	docs    DocumentStore
	vectors VectorIndex
	embed   Embedder
	opts    Options
	logger  *zap.Logger
}

// New creates a search service. Hybrid scores stay within [0,1] only for weights that sum to 1,
// so any other pair is rejected.
func New(docs DocumentStore, vectors VectorIndex, embed Embedder, opts Options, logger *zap.Logger) (*Service, error) {
	opts = opts.withDefaults()
	if err := ValidateWeights(opts.Weights); err != nil {
		return nil, err
	}
	return &Service{docs: docs, vectors: vectors, embed: embed, opts: opts, logger: logger}, nil
}

// Search executes req and returns at most req.Limit() results, best first.
// Ties break on newer capture time, then on id.
func (s *Service) Search(ctx context.Context, req *request.Request) (results []result.Result, err error) {
	start := time.Now()
	ctx, log := logger.With(ctx, s.logger, zap.String("mode", string(req.Mode())))

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			var se *StageError
			if errors.As(err, &se) {
				log.Warn("Search failed",
					zap.String("stage", string(StageFailed)),
					zap.String("failed_stage", string(se.Stage)),
					zap.Error(se.Err),
				)
			}
		}
		metrics.SearchDuration.WithLabelValues(string(req.Mode()), status).Observe(time.Since(start).Seconds())
	}()

	log.Debug("Search received", zap.String("stage", string(StageReceived)), zap.Int("limit", req.Limit()))
	fetch := req.Limit() * s.opts.Oversample

	var lexical, vector map[string]float64
	g, gctx := errgroup.WithContext(ctx)
	if req.Mode().NeedsText() {
		g.Go(func() error {
			hits, lerr := s.docs.Query(gctx, req.Text(), req.Filters(), fetch)
			if lerr != nil {
				return &StageError{Stage: StageLexicalLookup, Err: lerr}
			}
			lexical = normalizeLexical(hits)
			return nil
		})
	}
	if req.Mode().NeedsEmbedding() {
		g.Go(func() error {
			vec, eerr := s.embed.Embed(gctx, req.Text())
			if eerr != nil {
				return &StageError{Stage: StageVectorLookup, Err: fmt.Errorf("embed query: %w", eerr)}
			}
			hits, verr := s.vectors.Search(gctx, vec, req.Filters(), fetch, req.Threshold())
			if verr != nil {
				return &StageError{Stage: StageVectorLookup, Err: verr}
			}
			vector = vectorScores(hits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results, err = s.merge(ctx, req, lexical, vector)
	if err != nil {
		return nil, err
	}

	s.rank(results)
	log.Debug("Search ranked", zap.String("stage", string(StageRanked)), zap.Int("candidates", len(results)))
	if len(results) > req.Limit() {
		results = results[:req.Limit()]
	}
	log.Debug("Search returned",
		zap.String("stage", string(StageReturned)),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

// merge loads every candidate, drops documents that vanished or fail the post-filter,
// and scores the rest for the request mode.
func (s *Service) merge(
	ctx context.Context, req *request.Request, lexical, vector map[string]float64,
) ([]result.Result, error) {
	cands := mergeCandidates(lexical, vector)
	if len(cands) == 0 {
		return []result.Result{}, nil
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, &StageError{Stage: StageMerging, Err: err}
	}
	byID := make(map[string]domdoc.Document, len(docs))
	for _, d := range docs {
		byID[d.ID()] = d
	}

	criteria := req.Criteria()
	out := make([]result.Result, 0, len(cands))
	for _, c := range cands {
		doc, ok := byID[c.id]
		if !ok || !criteria.Matches(doc.Subject()) {
			continue
		}
		out = append(out, result.New(doc, s.score(req.Mode(), c), c.lexical, c.vector))
	}
	return out, nil
}

func (s *Service) score(m mode.Mode, c candidate) float64 {
	switch m {
	case mode.Lexical:
		return deref(c.lexical)
	case mode.Vector:
		return deref(c.vector)
	default:
		return s.opts.Weights.combine(c)
	}
}

// rank orders by score desc, then capture time desc, then id asc.
func (s *Service) rank(results []result.Result) {
	slices.SortStableFunc(results, func(a, b result.Result) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		da, db := a.Document(), b.Document()
		if c := db.CapturedAt().Compare(da.CapturedAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// weightTolerance absorbs float noise from YAML values such as 0.7 + 0.3.
const weightTolerance = 1e-9

// ValidateWeights requires two non-negative weights that sum to 1.
func ValidateWeights(w Weights) error {
	if w.Vector < 0 || w.Text < 0 {
		return fmt.Errorf("%w: hybrid weights must not be negative, got %g and %g", domain.ErrValidation, w.Vector, w.Text)
	}
	if math.Abs(w.Vector+w.Text-1) > weightTolerance {
		return fmt.Errorf("%w: hybrid weights must sum to 1, got %g + %g", domain.ErrValidation, w.Vector, w.Text)
	}
	return nil
}
