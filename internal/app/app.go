// Package app wires configuration into stores, model clients and use cases.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imgdex/internal/config"
	"github.com/kailas-cloud/imgdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/imgdex/internal/db/redis"
	"github.com/kailas-cloud/imgdex/internal/domain"
	"github.com/kailas-cloud/imgdex/internal/metrics"
	documentrepo "github.com/kailas-cloud/imgdex/internal/repository/document"
	"github.com/kailas-cloud/imgdex/internal/repository/embcache"
	"github.com/kailas-cloud/imgdex/internal/repository/memory"
	"github.com/kailas-cloud/imgdex/internal/repository/pgvector"
	vectorrepo "github.com/kailas-cloud/imgdex/internal/repository/vector"
	anthropicTransport "github.com/kailas-cloud/imgdex/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/imgdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/imgdex/internal/transport/openai"
	batchuc "github.com/kailas-cloud/imgdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/imgdex/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/imgdex/internal/usecase/embedding"
	"github.com/kailas-cloud/imgdex/internal/usecase/gateway"
	healthuc "github.com/kailas-cloud/imgdex/internal/usecase/health"
	"github.com/kailas-cloud/imgdex/internal/usecase/maintenance"
	"github.com/kailas-cloud/imgdex/internal/usecase/pipeline"
	"github.com/kailas-cloud/imgdex/internal/usecase/reconcile"
	searchuc "github.com/kailas-cloud/imgdex/internal/usecase/search"
	"github.com/kailas-cloud/imgdex/internal/usecase/stats"
)

// documentStore is everything the use cases need from one document backend.
type documentStore interface {
	pipeline.DocumentStore
	reconcile.DocumentStore
	searchuc.DocumentStore
	documentuc.Repository
	stats.DocumentCounter
	healthuc.Pinger
	EnsureIndex(ctx context.Context) error
}

// vectorIndex is everything the use cases need from one vector backend.
type vectorIndex interface {
	pipeline.VectorIndex
	reconcile.VectorIndex
	searchuc.VectorIndex
	documentuc.PointDeleter
	stats.PointCounter
	healthuc.Pinger
	EnsureIndex(ctx context.Context) error
}

// App holds the wired use cases of one process.
type App struct {
	Documents   *documentuc.Service
	Search      *searchuc.Service
	Batch       *batchuc.Service
	Stats       *stats.Service
	Pipeline    *pipeline.Service
	Reconcile   *reconcile.Service
	Maintenance *maintenance.Service
	Health      *healthuc.Service

	closers []func()
}

// Build opens the configured backends and wires every use case.
// The caller owns the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	wired := false
	defer func() {
		if !wired {
			a.Close()
		}
	}()

	var redisStore *dbRedis.Store
	if cfg.Database.Driver == config.DriverRedis {
		var err error
		redisStore, err = openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisStore.Close)
	}

	docs, err := a.openDocuments(cfg, redisStore)
	if err != nil {
		return nil, err
	}
	vectors, err := a.openVectors(ctx, cfg, redisStore)
	if err != nil {
		return nil, err
	}
	if err := docs.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure document index: %w", err)
	}
	if err := vectors.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}

	describer := buildDescriber(cfg, logger)
	gwOpts := gateway.Options{
		DescribeTimeout: seconds(cfg.Models.Description.TimeoutSec),
		EmbedTimeout:    seconds(cfg.Models.Embedding.TimeoutSec),
		Attempts:        cfg.Models.Attempts,
		BaseBackoff:     time.Duration(cfg.Models.BackoffMs) * time.Millisecond,
		Temperature:     cfg.Models.Temperature,
		MaxTokens:       cfg.Models.MaxTokens,
		Dimensions:      cfg.Vector.Dimensions,
	}
	embedder := buildEmbedder(cfg, redisStore, logger)
	docGateway := gateway.New(describer, withInstruction(embedder, cfg.Models.Embedding.DocumentInstruction), gwOpts, logger)
	queryGateway := gateway.New(describer, withInstruction(embedder, cfg.Models.Embedding.QueryInstruction), gwOpts, logger)

	a.Documents = documentuc.New(docs, vectors, logger).
		WithPagination(cfg.Documents.DefaultPageSize, cfg.Documents.MaxPageSize)
	a.Batch = batchuc.New(a.Documents, a.Documents).WithMaxBatchSize(cfg.Documents.MaxBatchSize)
	a.Search, err = searchuc.New(docs, vectors, queryGateway, searchuc.Options{
		Weights:    searchuc.Weights{Vector: cfg.Search.VectorWeight, Text: cfg.Search.TextWeight},
		Oversample: cfg.Search.Oversample,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}
	a.Pipeline = pipeline.New(docs, vectors, docGateway, pipeline.Options{
		Params:       PipelineParams(cfg),
		Attempts:     cfg.Pipeline.Attempts,
		BaseBackoff:  time.Duration(cfg.Pipeline.BackoffMs) * time.Millisecond,
		StoreTimeout: cfg.Pipeline.StoreTimeout(),
	}, logger)
	a.Reconcile = reconcile.New(docs, vectors, a.Pipeline, reconcile.Options{
		CandidateLimit: cfg.Reconcile.CandidateLimit,
		StoreTimeout:   cfg.Pipeline.StoreTimeout(),
	}, logger)
	a.Stats = stats.New(docs, vectors)
	a.Maintenance = maintenance.New(a.Pipeline, a.Reconcile, a.Stats, logger)
	a.Health = healthuc.New(docs, vectors, docGateway, logger)

	logger.Info("Application wired",
		zap.String("documents", cfg.Database.Driver),
		zap.String("vectors", cfg.Vector.Driver),
		zap.String("describer", cfg.Models.Description.Provider+"/"+cfg.Models.Description.Model),
		zap.String("embedder", cfg.Models.Embedding.Provider+"/"+cfg.Models.Embedding.Model),
		zap.Int("dimensions", cfg.Vector.Dimensions),
		zap.Bool("embedding_cache", redisStore != nil && cfg.Models.Cache.Enabled),
	)
	wired = true
	return a, nil
}

// HTTPServices exposes the use cases to the HTTP transport.
func (a *App) HTTPServices() chiTransport.Services {
	return chiTransport.Services{
		Documents:   a.Documents,
		Search:      a.Search,
		Batch:       a.Batch,
		Stats:       a.Stats,
		Pipeline:    a.Pipeline,
		Reconcile:   a.Reconcile,
		Maintenance: a.Maintenance,
		Health:      a.Health,
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// PipelineParams returns the configured run defaults.
func PipelineParams(cfg *config.Config) pipeline.Params {
	return pipeline.Params{
		BatchSize:    cfg.Pipeline.BatchSize,
		MaxDocuments: cfg.Pipeline.MaxDocuments,
		Concurrency:  cfg.Pipeline.Concurrency,
	}
}

func openRedis(ctx context.Context, cfg *config.Config) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:            cfg.Database.Addrs,
		Username:         cfg.Database.Username,
		Password:         cfg.Database.Password,
		DB:               cfg.Database.DB,
		ConnWriteTimeout: cfg.Pipeline.StoreTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, seconds(cfg.Database.ReadinessTimeout)); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	return store, nil
}

func (a *App) openDocuments(cfg *config.Config, redisStore *dbRedis.Store) (documentStore, error) {
	if cfg.Database.Driver == config.DriverRedis {
		return documentrepo.New(redisStore), nil
	}
	docs, err := memory.NewDocuments()
	if err != nil {
		return nil, fmt.Errorf("create memory documents: %w", err)
	}
	a.closers = append(a.closers, func() { _ = docs.Close() })
	return docs, nil
}

func (a *App) openVectors(ctx context.Context, cfg *config.Config, redisStore *dbRedis.Store) (vectorIndex, error) {
	switch cfg.Vector.Driver {
	case config.DriverRedis:
		return vectorrepo.New(redisStore, vectorrepo.Options{
			Dimensions:     cfg.Vector.Dimensions,
			M:              cfg.Vector.HNSWM,
			EFConstruction: cfg.Vector.HNSWEFConstruct,
		}), nil
	case config.DriverPGVector:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:         cfg.Vector.DSN,
			MaxConns:    cfg.Vector.MaxConns,
			PingTimeout: seconds(cfg.Database.ReadinessTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("open pgvector: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return pgvector.New(pool, pgvector.Options{
			Dimensions:     cfg.Vector.Dimensions,
			M:              cfg.Vector.HNSWM,
			EFConstruction: cfg.Vector.HNSWEFConstruct,
		}), nil
	default:
		return memory.NewVectors(cfg.Vector.Dimensions), nil
	}
}

// buildDescriber picks the description provider and wraps it with logging.
func buildDescriber(cfg *config.Config, logger *zap.Logger) domain.Describer {
	mc := cfg.Models.Description
	var base domain.Describer
	switch mc.Provider {
	case config.ProviderAnthropic:
		base = anthropicTransport.NewDescriber(&anthropicTransport.Config{
			APIKey:  mc.APIKey,
			BaseURL: mc.BaseURL,
			Model:   mc.Model,
			Logger:  logger,
		})
	default:
		base = openaiTransport.NewDescriber(&openaiTransport.Config{
			APIKey:   mc.APIKey,
			BaseURL:  mc.BaseURL,
			Model:    mc.Model,
			Provider: mc.Provider,
			Logger:   logger,
		})
	}
	return embeddinguc.NewInstrumentedDescriber(base, mc.Provider, mc.Model, logger)
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg *config.Config, redisStore *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	mc := cfg.Models.Embedding
	oc := &openaiTransport.Config{
		APIKey:   mc.APIKey,
		BaseURL:  mc.BaseURL,
		Model:    mc.Model,
		Provider: mc.Provider,
		Logger:   logger,
	}
	if mc.Truncate {
		oc.Dimensions = cfg.Vector.Dimensions
	}

	var embedder domain.Embedder = openaiTransport.NewEmbedder(oc)
	if redisStore != nil && cfg.Models.Cache.Enabled {
		embedder = embcache.New(embedder, redisStore, embcache.Options{
			Model:      mc.Model,
			Dimensions: cfg.Vector.Dimensions,
			TTL:        time.Duration(cfg.Models.Cache.TTLHours) * time.Hour,
		}, metrics.EmbeddingCacheTotal, logger)
	}
	return embeddinguc.NewInstrumentedEmbedder(embedder, mc.Provider, mc.Model, logger)
}

// withInstruction is the outermost decorator so the cache key includes the instruction.
func withInstruction(inner domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return inner
	}
	return domain.NewInstructionEmbedder(inner, instruction)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
