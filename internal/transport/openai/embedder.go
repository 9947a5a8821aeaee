package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

const capabilityEmbed = "embed"

// Embedder turns text into vectors through the /embeddings endpoint of an
// OpenAI-compatible server (OpenAI, Ollama, Nebius).
type Embedder struct {
	client     *openai.Client
	call       metrics.ModelCall
	dimensions int
	user       string
	logger     *zap.Logger
}

// Config holds the provider settings shared by the embedder and the describer.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	User     string
	Provider string
	// Dimensions is sent with embedding requests when the model supports truncation.
	Dimensions int
	Logger     *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:     newClient(cfg),
		call:       metrics.ModelCall{Capability: capabilityEmbed, Provider: cfg.Provider, Model: cfg.Model},
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		logger:     logger,
	}
}

// Embed implements domain.Embedder for a single input text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.call.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	took := time.Since(start)
	if err != nil {
		e.call.Observe(metrics.OutcomeAPIError, took)
		return domain.EmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbedding)
	}

	vec := firstEmbedding(resp.Data)
	if len(vec) == 0 {
		e.call.Observe(metrics.OutcomeEmptyResponse, took)
		return domain.EmbeddingResult{}, fmt.Errorf("embedding response has no vector: %w", domain.ErrEmbedding)
	}
	// Servers that ignore the dimensions parameter return the native size.
	if e.dimensions > 0 && len(vec) != e.dimensions {
		e.call.Observe(metrics.OutcomeAPIError, took)
		return domain.EmbeddingResult{}, fmt.Errorf("%w: got %d dimensions, requested %d",
			domain.ErrEmbedding, len(vec), e.dimensions)
	}

	e.call.Observe(metrics.OutcomeSuccess, took)
	e.logger.Debug("Embedding generated",
		zap.String("model", e.call.Model),
		zap.Int("dimensions", len(vec)),
		zap.Duration("duration", took),
	)
	e.call.Tokens("prompt", resp.Usage.PromptTokens)
	e.call.Tokens("total", resp.Usage.TotalTokens)

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// firstEmbedding returns the vector for input 0. Servers may not keep response order.
func firstEmbedding(data []openai.Embedding) []float32 {
	for _, d := range data {
		if d.Index == 0 {
			return d.Embedding
		}
	}
	return nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
