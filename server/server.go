package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/vectorwave/ai"
	"github.com/hrygo/vectorwave/ai/cache"
	"github.com/hrygo/vectorwave/ai/chat"
	"github.com/hrygo/vectorwave/ai/configloader"
	"github.com/hrygo/vectorwave/ai/core/llm"
	"github.com/hrygo/vectorwave/ai/metrics"
	"github.com/hrygo/vectorwave/ai/observability/logging"
	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/internal/profile"
	apiv1 "github.com/hrygo/vectorwave/server/router/api/v1"
	"github.com/hrygo/vectorwave/store"
)

const (
	bodyLimit = "8M"
	// maxCleanupInterval caps how long an idle session may outlive its timeout.
	maxCleanupInterval = time.Minute
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	sessions   *chat.SessionRegistry
	redis      *redis.Client

	stopHousekeeping context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Secret:   profile.JWTSecret,
		Profile:  profile,
		Store:    store,
		sessions: chat.NewSessionRegistry(),
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.RequestID())
	echoServer.Use(requestLogger())
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.BodyLimit(bodyLimit))
	s.echoServer = echoServer

	exporter := metrics.NewPrometheusExporter(metrics.Config{RuntimeCollectors: true})
	events := chat.NewEventBus()
	subscribeListeners(events, exporter, profile.WebhookURL)

	aiConfig := ai.NewConfigFromProfile(profile)
	completion, embedder, err := s.newAIServices(ctx, aiConfig, exporter)
	if err != nil {
		return nil, err
	}

	var systemInstruction string
	if profile.PromptFile != "" {
		prompts, err := configloader.NewLoader(profile.Data).LoadPrompts(profile.PromptFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load prompts")
		}
		systemInstruction = prompts.SystemInstruction
		slog.Info("Loaded prompts", "file", profile.PromptFile)
	}

	s.apiV1 = apiv1.NewAPIV1Service(s.Secret, profile, apiv1.Dependencies{
		Store:      store,
		Completion: completion,
		Embedder:   embedder,
		Index:      vector.NewStoreIndex(store),
		Events:     events,
		Sessions:   s.sessions,
		Metrics:    exporter,
		TopK:       aiConfig.Retrieval.TopK,

		SystemInstruction: systemInstruction,
	})
	s.apiV1.RegisterRoutes(echoServer)

	return s, nil
}

// newAIServices builds the completion and embedding services. With AI
// disabled both are stand-ins that fail every call.
func (s *Server) newAIServices(ctx context.Context, cfg *ai.Config, exporter *metrics.PrometheusExporter) (ai.CompletionService, ai.EmbeddingService, error) {
	if !cfg.Enabled {
		slog.Info("AI features disabled", "enabled", cfg.Enabled, "driver", s.Profile.Driver)
		return disabledAI{}, disabledAI{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid AI configuration")
	}

	llmService, err := llm.NewService(&cfg.LLM)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize LLM service")
	}
	slog.Info("LLM service initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)
	// Best-effort warmup to cut first-request latency.
	go func() {
		warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer warmupCancel()
		llmService.Warmup(warmupCtx)
	}()

	embeddingService, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize embedding service")
	}

	vectorCache, err := s.newVectorCache(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}
	embedder := ai.NewObservedEmbeddingService(embeddingService, vectorCache, cfg.Embedding.Model, exporter)
	return ai.NewCompletionServiceFromLLM(llmService), embedder, nil
}

// newVectorCache prefers the shared Redis cache when an address is set.
func (s *Server) newVectorCache(ctx context.Context, cfg ai.EmbeddingConfig) (cache.VectorStore, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryStore(cfg.CacheSize, cfg.CacheTTL), nil
	}
	client, err := cache.DialRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.RedisAddr)
	}
	s.redis = client
	slog.Info("Embedding cache uses redis", "addr", cfg.RedisAddr)
	return cache.NewRedisStore(client, cfg.CacheTTL), nil
}

// Start begins serving in the background and starts session housekeeping.
func (s *Server) Start(ctx context.Context) error {
	var address, network string
	if len(s.Profile.UNIXSock) == 0 {
		address = fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
		network = "tcp"
	} else {
		address = s.Profile.UNIXSock
		network = "unix"
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()

	hkCtx, cancel := context.WithCancel(ctx)
	s.stopHousekeeping = cancel
	go s.runSessionCleanup(hkCtx, s.Profile.SessionIdleTimeout)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if s.stopHousekeeping != nil {
		s.stopHousekeeping()
	}

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis client", slog.String("error", err.Error()))
		}
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("vectorwave stopped properly")
}

// Handler exposes the HTTP handler for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// runSessionCleanup evicts idle sessions until ctx is done.
func (s *Server) runSessionCleanup(ctx context.Context, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	interval := min(maxIdle/2, maxCleanupInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.CleanupIdle(maxIdle); n > 0 {
				slog.Debug("Evicted idle sessions", "count", n, "remaining", s.sessions.Len())
			}
		}
	}
}

// requestLogger puts a request-scoped logger into the request context and
// logs each request once it completes.
func requestLogger() echo.MiddlewareFunc {
	logRequests := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := logging.FromContext(c.Request().Context())
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("Request", attrs...)
			return nil
		},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withLogger := logRequests(next)
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.With(req.Context(), "request_id", id)))
			return withLogger(c)
		}
	}
}

// disabledAI stands in for the completion and embedding services when no
// provider is configured.
type disabledAI struct{}

var errAIDisabled = errors.New("AI features are disabled; set VECTORWAVE_LLM_API_KEY")

func (disabledAI) Complete(context.Context, []ai.Message, string) (string, error) {
	return "", errAIDisabled
}

func (disabledAI) Embed(context.Context, string) ([]float32, error) {
	return nil, errAIDisabled
}

func (disabledAI) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errAIDisabled
}
