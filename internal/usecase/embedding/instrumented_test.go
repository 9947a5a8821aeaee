package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/imgdex/internal/domain"
)

type mockEmbedder struct {
	result    domain.EmbeddingResult
	err       error
	healthErr error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) HealthCheck(context.Context) error { return m.healthErr }

type plainEmbedder struct{}

func (plainEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, nil
}

type mockDescriber struct {
	out string
	err error
}

func (m *mockDescriber) Describe(context.Context, domain.DescriptionRequest) (string, error) {
	return m.out, m.err
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 7,
		TotalTokens:  7,
	}}
	core, logs := observer.New(zap.DebugLevel)
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.New(core))

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.TotalTokens != 7 {
		t.Errorf("unexpected result: %+v", result)
	}
	entries := logs.FilterMessage("Embedding request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	if entries[0].ContextMap()["total_tokens"] != int64(7) {
		t.Errorf("total_tokens field = %v", entries[0].ContextMap()["total_tokens"])
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbedding}
	core, logs := observer.New(zap.WarnLevel)
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.New(core))

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if logs.FilterMessage("Embedding request failed").Len() != 1 {
		t.Error("failure not logged")
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	down := errors.New("down")
	p := NewInstrumentedEmbedder(&mockEmbedder{healthErr: down}, "test", "m", zap.NewNop())
	if err := p.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected inner health error, got %v", err)
	}

	plain := NewInstrumentedEmbedder(plainEmbedder{}, "test", "m", zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check should report healthy, got %v", err)
	}
}

func TestInstrumentedDescriber(t *testing.T) {
	ok := NewInstrumentedDescriber(&mockDescriber{out: "a dog"}, "test", "m", zap.NewNop())
	out, err := ok.Describe(context.Background(), domain.DescriptionRequest{Prompt: "p"})
	if err != nil || out != "a dog" {
		t.Fatalf("Describe() = %q, %v", out, err)
	}

	failing := NewInstrumentedDescriber(&mockDescriber{err: domain.ErrGeneration}, "test", "m", zap.NewNop())
	if _, err := failing.Describe(context.Background(), domain.DescriptionRequest{}); !errors.Is(err, domain.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}
