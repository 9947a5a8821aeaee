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

const capabilityDescribe = "describe"

// Describer generates image descriptions through the chat completions API.
// Any OpenAI-compatible server works, including a local Ollama.
type Describer struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewDescriber creates an OpenAI-compatible description provider.
func NewDescriber(cfg *Config) *Describer {
	return &Describer{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Describe implements domain.Describer.
func (d *Describer) Describe(ctx context.Context, req domain.DescriptionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	oReq := openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		User:        d.user,
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}

	call := metrics.ModelCall{Capability: capabilityDescribe, Provider: d.provider, Model: d.model}
	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, oReq)
	duration := time.Since(start)

	if err != nil {
		call.Observe(metrics.OutcomeAPIError, duration)
		return "", parseAPIError("chat", err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		call.Observe(metrics.OutcomeEmptyResponse, duration)
		return "", fmt.Errorf("empty chat response: %w", domain.ErrGeneration)
	}
	call.Observe(metrics.OutcomeSuccess, duration)
	call.Tokens("prompt", resp.Usage.PromptTokens)
	call.Tokens("completion", resp.Usage.CompletionTokens)

	d.logger.Debug("Description generated",
		zap.String("model", d.model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
