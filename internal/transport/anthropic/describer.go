// Package anthropic generates image descriptions with the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/metrics"
)

const (
	capabilityDescribe = "describe"
	defaultMaxTokens   = 300
)

// Config holds the provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// Describer implements domain.Describer on top of Messages.New.
type Describer struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

// NewDescriber creates a describer. SDK retries are off; the gateway retries.
func NewDescriber(cfg *Config) *Describer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Describer{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Describe implements domain.Describer.
func (d *Describer) Describe(ctx context.Context, req domain.DescriptionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	call := metrics.ModelCall{Capability: capabilityDescribe, Provider: "anthropic", Model: d.model}
	start := time.Now()
	resp, err := d.client.Messages.New(ctx, params)
	duration := time.Since(start)

	if err != nil {
		call.Observe(metrics.OutcomeAPIError, duration)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("messages API error %d: %w: %w", apiErr.StatusCode, domain.ErrGeneration, err)
		}
		return "", fmt.Errorf("messages request failed: %w: %w", domain.ErrGeneration, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	if b.Len() == 0 {
		call.Observe(metrics.OutcomeEmptyResponse, duration)
		return "", fmt.Errorf("messages response has no text: %w", domain.ErrGeneration)
	}
	call.Observe(metrics.OutcomeSuccess, duration)
	call.Tokens("prompt", int(resp.Usage.InputTokens))
	call.Tokens("completion", int(resp.Usage.OutputTokens))

	d.logger.Debug("Description generated",
		zap.String("model", d.model),
		zap.Duration("duration", duration),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return b.String(), nil
}
