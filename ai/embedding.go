package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/vectorwave/ai/cache"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates an EmbeddingService for any OpenAI-compatible
// provider (openai, siliconflow, ollama, ...).
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// Providers may return data out of input order.
	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		if len(data.Embedding) == 0 {
			return nil, errors.New("empty embedding result")
		}
		vectors[idx] = data.Embedding
	}

	return vectors, nil
}

// CacheObserver is told about embedding cache lookups.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const embeddingCacheType = "embedding"

type cachedEmbeddingService struct {
	next     EmbeddingService
	store    cache.VectorStore
	model    string
	observer CacheObserver
}

// NewObservedEmbeddingService decorates next with a vector cache keyed by
// model and text, reporting hits and misses to observer, which may be nil.
// Cache backend failures are logged and fall through to next.
func NewObservedEmbeddingService(next EmbeddingService, store cache.VectorStore, model string, observer CacheObserver) EmbeddingService {
	return &cachedEmbeddingService{next: next, store: store, model: model, observer: observer}
}

func (s *cachedEmbeddingService) record(hit bool) {
	if s.observer == nil {
		return
	}
	if hit {
		s.observer.RecordCacheHit(embeddingCacheType)
	} else {
		s.observer.RecordCacheMiss(embeddingCacheType)
	}
}

func (s *cachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.VectorKey(s.model, text)
	if vec, ok, err := s.store.Get(ctx, key); err != nil {
		slog.Warn("Embedding cache read failed", "error", err)
	} else if ok {
		s.record(true)
		return vec, nil
	}
	s.record(false)

	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, key, vec); err != nil {
		slog.Warn("Embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (s *cachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		vec, ok, err := s.store.Get(ctx, cache.VectorKey(s.model, text))
		if err != nil {
			slog.Warn("Embedding cache read failed", "error", err)
		}
		s.record(ok)
		if ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := s.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		vectors[missingIdx[j]] = vec
		if err := s.store.Set(ctx, cache.VectorKey(s.model, missing[j]), vec); err != nil {
			slog.Warn("Embedding cache write failed", "error", err)
		}
	}
	return vectors, nil
}
