// Package embedding holds decorators around the model providers.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
)

// InstrumentedEmbedder wraps an Embedder with request logging.
// Transport metrics (requests, duration, tokens) are recorded by the providers.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with logging.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, provider: provider, model: model, logger: logger}
}

// Embed delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Warn("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // reported as-is by health
	}
	return nil
}

// InstrumentedDescriber wraps a Describer with request logging.
type InstrumentedDescriber struct {
	inner    domain.Describer
	provider string
	model    string
	logger   *zap.Logger
}

// NewInstrumentedDescriber wraps a describer with logging.
func NewInstrumentedDescriber(inner domain.Describer, provider, model string, logger *zap.Logger) *InstrumentedDescriber {
	return &InstrumentedDescriber{inner: inner, provider: provider, model: model, logger: logger}
}

// Describe delegates to the inner describer and logs the outcome.
func (p *InstrumentedDescriber) Describe(ctx context.Context, req domain.DescriptionRequest) (string, error) {
	start := time.Now()
	out, err := p.inner.Describe(ctx, req)
	duration := time.Since(start)

	if err != nil {
		p.logger.Warn("Description request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("describe: %w", err)
	}

	p.logger.Debug("Description request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("chars", len(out)),
	)
	return out, nil
}
