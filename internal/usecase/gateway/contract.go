package gateway

import (
	"context"

	"github.com/kailas-cloud/imgdex/internal/domain"
)

// Describer generates a description from a prompt.
type Describer interface {
	Describe(ctx context.Context, req domain.DescriptionRequest) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
