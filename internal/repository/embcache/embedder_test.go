package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/imgdex/internal/db"
	"github.com/kailas-cloud/imgdex/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner, Options{Model: "nomic"})
	ctx := context.Background()

	var setKey string
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		setKey = key
		return nil
	}

	result, err := ce.Embed(ctx, "a dog on a beach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.TotalTokens != 10 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.HasPrefix(setKey, "imgdex:emb:") {
		t.Fatalf("expected cache put, key=%q", setKey)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{}
	ce, ms := newTestCachedEmbedder(t, inner, Options{Dimensions: 3})
	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(context.Context, string) ([]byte, error) { return cached, nil }

	result, err := ce.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embedding[0] != 0.4 || result.TotalTokens != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if inner.calls != 0 {
		t.Fatal("inner embedder must not be called on hit")
	}
}

func TestEmbed_WrongDimensionsIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}}
	ce, ms := newTestCachedEmbedder(t, inner, Options{Dimensions: 4})
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return vectorToCacheBytes([]float32{1, 2}), nil
	}

	result, err := ce.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 || len(result.Embedding) != 4 {
		t.Fatalf("calls=%d result=%v", inner.calls, result.Embedding)
	}
}

func TestEmbed_TTL(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner, Options{TTL: time.Hour})
	var gotTTL time.Duration
	ms.setWithTTLFn = func(_ context.Context, _ string, _ []byte, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}
	ms.setFn = func(context.Context, string, []byte) error {
		t.Fatal("Set must not be used when TTL is configured")
		return nil
	}

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if gotTTL != time.Hour {
		t.Fatalf("ttl = %v", gotTTL)
	}
}

func TestEmbed_KeyDependsOnModel(t *testing.T) {
	a, _ := newTestCachedEmbedder(t, &mockEmbedder{}, Options{Model: "a"})
	b, _ := newTestCachedEmbedder(t, &mockEmbedder{}, Options{Model: "b"})
	if a.cacheKey("same") == b.cacheKey("same") {
		t.Fatal("cache keys must differ across models")
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbedding}
	ce, _ := newTestCachedEmbedder(t, inner, Options{})

	_, err := ce.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbed_StoreErrorDegradesToMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner, Options{})
	ms.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("conn reset") }
	ms.setFn = func(context.Context, string, []byte) error { return &db.Error{Op: db.OpSet, Err: errors.New("OOM")} }

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("cache failures must not fail Embed: %v", err)
	}
}
