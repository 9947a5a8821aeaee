// Package gateway fronts the description and embedding models with timeouts,
// bounded retries and error classification.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

// Options tune the gateway. Zero values take defaults.
type Options struct {
	DescribeTimeout time.Duration
	EmbedTimeout    time.Duration
	// Attempts per call including the first one.
	Attempts    int
	BaseBackoff time.Duration
	Temperature float32
	MaxTokens   int
	System      string
	// Dimensions, when set, rejects vectors of another length.
	Dimensions int
}

func (o Options) withDefaults() Options {
	if o.DescribeTimeout <= 0 {
		o.DescribeTimeout = 60 * time.Second
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 30 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.Temperature == 0 {
		o.Temperature = 0.1
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 300
	}
	if o.System == "" {
		o.System = defaultSystemPrompt
	}
	return o
}

// Service is the model gateway.
type Service struct {
	describer Describer
	embedder  Embedder
	opts      Options
	logger    *zap.Logger
}

// New creates a gateway.
func New(describer Describer, embedder Embedder, opts Options, logger *zap.Logger) *Service {
	return &Service{
		describer: describer,
		embedder:  embedder,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// GenerateDescription asks the description model about doc.
// Timeouts, provider failures and empty answers surface as domain.ErrGeneration.
func (s *Service) GenerateDescription(ctx context.Context, doc *domdoc.Document) (string, error) {
	req := domain.DescriptionRequest{
		System:      s.opts.System,
		Prompt:      BuildPrompt(doc),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}

	var text string
	err := s.retry(ctx, "describe", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.DescribeTimeout)
		defer cancel()

		out, err := s.describer.Describe(callCtx, req)
		if err != nil {
			return err //nolint:wrapcheck // classified by retry
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return errors.New("empty description")
		}
		text = out
		return nil
	})
	if err != nil {
		return "", classify(domain.ErrGeneration, err)
	}
	return text, nil
}

// Embed turns text into a vector. Failures surface as domain.ErrEmbedding.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrValidation)
	}

	var vec []float32
	err := s.retry(ctx, "embed", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()

		res, err := s.embedder.Embed(callCtx, text)
		if err != nil {
			return err //nolint:wrapcheck // classified by retry
		}
		if len(res.Embedding) == 0 {
			return errors.New("empty embedding")
		}
		if s.opts.Dimensions > 0 && len(res.Embedding) != s.opts.Dimensions {
			return fmt.Errorf("%w: got %d dimensions, want %d",
				errPermanent, len(res.Embedding), s.opts.Dimensions)
		}
		vec = res.Embedding
		return nil
	})
	if err != nil {
		return nil, classify(domain.ErrEmbedding, err)
	}
	return vec, nil
}

// HealthCheck pings the embedding provider when it supports it.
func (s *Service) HealthCheck(ctx context.Context) error {
	if hc, ok := s.embedder.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // reported as-is by health
	}
	return nil
}

var errPermanent = errors.New("permanent")

// retry runs fn up to Attempts times with quadratic backoff between attempts.
// It stops early on cancellation of ctx and on errors that will not heal.
func (s *Service) retry(ctx context.Context, capability string, fn func(context.Context) error) error {
	var lastErr error
	tries := 0
	for attempt := 0; attempt < s.opts.Attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * s.opts.BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
			case <-time.After(backoff):
			}
			metrics.ModelRetriesTotal.WithLabelValues(capability).Inc()
			s.logger.Debug("Retrying model call",
				zap.String("capability", capability),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		tries++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
		}
		if errors.Is(err, errPermanent) || !domain.IsTransient(err) {
			break
		}
	}
	return fmt.Errorf("after %d attempt(s): %w", tries, lastErr)
}

// classify wraps err with kind unless it already carries kind, cancellation or validation.
func classify(kind, err error) error {
	if errors.Is(err, kind) || errors.Is(err, domain.ErrCanceled) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
