package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol)
	LLMProvider    string  // openai, deepseek, siliconflow, ollama
	LLMAPIKey      string  // LLM API key
	LLMBaseURL     string  // optional, has default per provider
	LLMModel       string  // gpt-3.5-turbo, deepseek-chat, ...
	LLMTimeout     int     // request timeout in seconds (default: 120)
	LLMMaxTokens   int     // 0 lets the provider decide
	LLMTemperature float32 // default: 0.7
	LLMRateLimit   float64 // requests per second, 0 disables throttling
	LLMRateBurst   int

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Retrieval and caching
	RetrievalTopK      int
	EmbeddingCacheSize int
	EmbeddingCacheTTL  time.Duration
	RedisAddr          string // optional shared embedding cache

	// WebhookURL receives turn events when set.
	WebhookURL string
	// PromptFile is an optional YAML file overriding the system instruction.
	PromptFile string

	// Auth and sessions
	JWTSecret          string
	SessionIdleTimeout time.Duration

	// Server and storage
	UNIXSock    string
	Mode        string
	DSN         string
	Driver      string
	Version     string
	InstanceURL string
	Addr        string
	Data        string
	Port        int
}

// Provider default configurations for LLM.
// Used when VECTORWAVE_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-3.5-turbo",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

// devJWTSecret is only accepted outside prod mode.
const devJWTSecret = "vectorwave-dev-secret"

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads AI, cache and auth configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("VECTORWAVE_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("VECTORWAVE_LLM_API_KEY", os.Getenv("OPENAI_API_KEY"))
	p.LLMBaseURL = getEnvOrDefault("VECTORWAVE_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("VECTORWAVE_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("VECTORWAVE_LLM_TIMEOUT_SECONDS", 120)
	p.LLMMaxTokens = getEnvOrDefaultInt("VECTORWAVE_LLM_MAX_TOKENS", 0)
	p.LLMTemperature = float32(getEnvOrDefaultFloat("VECTORWAVE_LLM_TEMPERATURE", 0.7))
	p.LLMRateLimit = getEnvOrDefaultFloat("VECTORWAVE_LLM_RATE_LIMIT", 0)
	p.LLMRateBurst = getEnvOrDefaultInt("VECTORWAVE_LLM_RATE_BURST", 1)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("Unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	// Embeddings fall back to the LLM credentials when not set separately.
	p.EmbeddingProvider = getEnvOrDefault("VECTORWAVE_EMBEDDING_PROVIDER", p.LLMProvider)
	p.EmbeddingModel = getEnvOrDefault("VECTORWAVE_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("VECTORWAVE_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("VECTORWAVE_EMBEDDING_BASE_URL", p.LLMBaseURL)
	p.EmbeddingDimensions = getEnvOrDefaultInt("VECTORWAVE_EMBEDDING_DIMENSIONS", 0)

	p.RetrievalTopK = getEnvOrDefaultInt("VECTORWAVE_RETRIEVAL_TOP_K", 3)
	p.EmbeddingCacheSize = getEnvOrDefaultInt("VECTORWAVE_EMBEDDING_CACHE_SIZE", 1000)
	p.EmbeddingCacheTTL = getEnvOrDefaultDuration("VECTORWAVE_EMBEDDING_CACHE_TTL", time.Hour)
	p.RedisAddr = getEnvOrDefault("VECTORWAVE_REDIS_ADDR", "")
	p.WebhookURL = getEnvOrDefault("VECTORWAVE_WEBHOOK_URL", "")
	p.PromptFile = getEnvOrDefault("VECTORWAVE_PROMPT_FILE", "")

	p.JWTSecret = getEnvOrDefault("VECTORWAVE_JWT_SECRET", "")
	p.SessionIdleTimeout = getEnvOrDefaultDuration("VECTORWAVE_SESSION_IDLE_TIMEOUT", 30*time.Minute)
}

// ResolveJWTSecret applies the development secret outside prod mode.
func (p *Profile) ResolveJWTSecret() error {
	if p.JWTSecret != "" {
		return nil
	}
	if !p.IsDev() {
		return errors.New("VECTORWAVE_JWT_SECRET is required in prod mode")
	}
	slog.Warn("Using development JWT secret; set VECTORWAVE_JWT_SECRET for real deployments")
	p.JWTSecret = devJWTSecret
	return nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "vectorwave")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/vectorwave"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("vectorwave_%s.db", p.Mode))
	}
	if p.Driver == "sqlite" && strings.Contains(p.DSN, "?") {
		return errors.New("sqlite dsn must be a plain file path, pragmas are set by the driver")
	}

	if err := p.ResolveJWTSecret(); err != nil {
		return err
	}

	if p.RetrievalTopK <= 0 {
		return errors.Errorf("retrieval top-k must be positive, got %d", p.RetrievalTopK)
	}
	if p.LLMRateLimit < 0 {
		return errors.Errorf("llm rate limit must not be negative, got %v", p.LLMRateLimit)
	}
	return nil
}
