package profile

import (
	"testing"
	"time"
)

var profileEnvVars = []string{
	"VECTORWAVE_LLM_PROVIDER",
	"VECTORWAVE_LLM_API_KEY",
	"OPENAI_API_KEY",
	"VECTORWAVE_LLM_BASE_URL",
	"VECTORWAVE_LLM_MODEL",
	"VECTORWAVE_LLM_TIMEOUT_SECONDS",
	"VECTORWAVE_LLM_RATE_LIMIT",
	"VECTORWAVE_EMBEDDING_MODEL",
	"VECTORWAVE_EMBEDDING_API_KEY",
	"VECTORWAVE_EMBEDDING_BASE_URL",
	"VECTORWAVE_RETRIEVAL_TOP_K",
	"VECTORWAVE_EMBEDDING_CACHE_TTL",
	"VECTORWAVE_REDIS_ADDR",
	"VECTORWAVE_JWT_SECRET",
}

// clearProfileEnv blanks every variable FromEnv reads for the test's duration.
func clearProfileEnv(t *testing.T) {
	t.Helper()
	for _, key := range profileEnvVars {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearProfileEnv(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"LLMProvider default", "openai", profile.LLMProvider},
		{"LLMModel default", "gpt-3.5-turbo", profile.LLMModel},
		{"LLMBaseURL default", "https://api.openai.com/v1", profile.LLMBaseURL},
		{"EmbeddingModel default", "text-embedding-3-small", profile.EmbeddingModel},
		{"EmbeddingBaseURL follows LLM", "https://api.openai.com/v1", profile.EmbeddingBaseURL},
		{"RedisAddr empty", "", profile.RedisAddr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if profile.RetrievalTopK != 3 {
		t.Errorf("RetrievalTopK = %d, want 3", profile.RetrievalTopK)
	}
	if profile.LLMTimeout != 120 {
		t.Errorf("LLMTimeout = %d, want 120", profile.LLMTimeout)
	}
	if profile.EmbeddingCacheTTL != time.Hour {
		t.Errorf("EmbeddingCacheTTL = %v, want 1h", profile.EmbeddingCacheTTL)
	}
	if profile.IsAIEnabled() {
		t.Error("IsAIEnabled() = true without an API key")
	}
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "provider defaults applied",
			env:      map[string]string{"VECTORWAVE_LLM_PROVIDER": "deepseek"},
			field:    func(p *Profile) string { return p.LLMModel },
			expected: "deepseek-chat",
		},
		{
			name:     "unknown provider falls back to openai",
			env:      map[string]string{"VECTORWAVE_LLM_PROVIDER": "nope"},
			field:    func(p *Profile) string { return p.LLMProvider },
			expected: "openai",
		},
		{
			name:     "explicit model wins over provider default",
			env:      map[string]string{"VECTORWAVE_LLM_MODEL": "gpt-4o-mini"},
			field:    func(p *Profile) string { return p.LLMModel },
			expected: "gpt-4o-mini",
		},
		{
			name:     "OPENAI_API_KEY is honoured",
			env:      map[string]string{"OPENAI_API_KEY": "sk-test"},
			field:    func(p *Profile) string { return p.LLMAPIKey },
			expected: "sk-test",
		},
		{
			name:     "embedding key follows LLM key",
			env:      map[string]string{"VECTORWAVE_LLM_API_KEY": "sk-llm"},
			field:    func(p *Profile) string { return p.EmbeddingAPIKey },
			expected: "sk-llm",
		},
		{
			name: "embedding key can differ",
			env: map[string]string{
				"VECTORWAVE_LLM_API_KEY":       "sk-llm",
				"VECTORWAVE_EMBEDDING_API_KEY": "sk-embed",
			},
			field:    func(p *Profile) string { return p.EmbeddingAPIKey },
			expected: "sk-embed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProfileEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			p := &Profile{}
			p.FromEnv()
			if got := tt.field(p); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProfileValidate(t *testing.T) {
	t.Run("sqlite dsn defaults into data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: dir, RetrievalTopK: 3}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if p.DSN == "" {
			t.Fatal("DSN was not defaulted")
		}
		if p.JWTSecret != devJWTSecret {
			t.Errorf("JWTSecret = %q, want dev secret", p.JWTSecret)
		}
	})

	t.Run("prod requires jwt secret", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "sqlite", Data: t.TempDir(), RetrievalTopK: 3}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should fail without a JWT secret in prod")
		}
	})

	t.Run("sqlite dsn with query is rejected", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), DSN: "x.db?_loc=auto", RetrievalTopK: 3}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should reject query parameters in sqlite dsn")
		}
	})

	t.Run("top-k must be positive", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir()}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should reject top-k of 0")
		}
	})

	t.Run("unknown mode becomes demo", func(t *testing.T) {
		p := &Profile{Mode: "weird", Driver: "postgres", DSN: "postgres://x", Data: t.TempDir(), RetrievalTopK: 3}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if p.Mode != "demo" {
			t.Errorf("Mode = %q, want demo", p.Mode)
		}
	})
}
