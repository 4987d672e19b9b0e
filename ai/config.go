package ai

import (
	"errors"
	"time"

	"github.com/hrygo/vectorwave/ai/core/llm"
	"github.com/hrygo/vectorwave/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int // 0 keeps the model's native size

	CacheSize int
	CacheTTL  time.Duration
	RedisAddr string // empty uses the in-process LRU
}

// LLMConfig represents LLM configuration.
type LLMConfig = llm.Config

// RetrievalConfig controls vector lookups made during a turn.
type RetrievalConfig struct {
	TopK int
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled:   p.IsAIEnabled(),
		Retrieval: RetrievalConfig{TopK: p.RetrievalTopK},
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 3
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
		CacheSize:  p.EmbeddingCacheSize,
		CacheTTL:   p.EmbeddingCacheTTL,
		RedisAddr:  p.RedisAddr,
	}

	cfg.LLM = LLMConfig{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		MaxTokens:   p.LLMMaxTokens,
		Temperature: p.LLMTemperature,
		Timeout:     p.LLMTimeout,
		RateLimit:   p.LLMRateLimit,
		RateBurst:   p.LLMRateBurst,
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}
