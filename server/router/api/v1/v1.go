package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/vectorwave/ai"
	"github.com/hrygo/vectorwave/ai/chat"
	"github.com/hrygo/vectorwave/ai/document"
	"github.com/hrygo/vectorwave/ai/metrics"
	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/internal/profile"
	"github.com/hrygo/vectorwave/store"
)

// Dependencies are the collaborators the API is assembled from.
type Dependencies struct {
	Store      *store.Store
	Completion ai.CompletionService
	Embedder   ai.EmbeddingService
	Index      vector.Index
	Events     *chat.EventBus
	Sessions   *chat.SessionRegistry
	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.PrometheusExporter
	TopK    int
	// SystemInstruction overrides the built-in instruction when set.
	SystemInstruction string
}

type APIV1Service struct {
	// Domain Services
	ConversationService *chat.ConversationService
	TurnOrchestrator    *chat.TurnOrchestrator
	DocumentService     *document.Service

	// Shared Infra
	Profile       *profile.Profile
	Sessions      *chat.SessionRegistry
	Metrics       *metrics.PrometheusExporter
	Exporter      *TranscriptExporter
	authenticator *Authenticator
}

func NewAPIV1Service(secret string, profile *profile.Profile, deps Dependencies) *APIV1Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = chat.NewSessionRegistry()
	}

	var observer document.Observer
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	return &APIV1Service{
		ConversationService: chat.NewConversationService(deps.Store, sessions),
		TurnOrchestrator: chat.NewTurnOrchestrator(chat.OrchestratorConfig{
			Gateway:    deps.Store,
			Completion: deps.Completion,
			Embedder:   deps.Embedder,
			Index:      deps.Index,
			Events:     deps.Events,
			TopK:       deps.TopK,

			SystemInstruction: deps.SystemInstruction,
		}),
		DocumentService: document.NewService(document.Config{
			Gateway:  deps.Store,
			Embedder: deps.Embedder,
			Index:    deps.Index,
			Observer: observer,
		}),
		Profile:       profile,
		Sessions:      sessions,
		Metrics:       deps.Metrics,
		Exporter:      NewTranscriptExporter(profile.InstanceURL),
		authenticator: NewAuthenticator(secret),
	}
}

// RegisterRoutes mounts the health, metrics and /api/v1 routes.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	})
	api := e.Group("/api/v1", corsHandler, s.authenticator.Middleware())

	api.POST("/conversations", s.CreateConversation)
	api.GET("/conversations", s.ListConversations)
	api.GET("/conversations/:id", s.GetConversation)
	api.PATCH("/conversations/:id", s.RenameConversation)
	api.DELETE("/conversations/:id", s.DeleteConversation)
	api.GET("/conversations/:id/messages", s.ListMessages)
	api.POST("/conversations/:id/turns", s.SubmitTurn)
	api.GET("/conversations/:id/export", s.ExportConversation)

	api.POST("/documents", s.UploadDocument)
	api.GET("/documents", s.ListDocuments)
	api.GET("/documents/:id", s.GetDocument)
	api.PATCH("/documents/:id", s.RenameDocument)
	api.DELETE("/documents/:id", s.DeleteDocument)
	api.POST("/documents/:id/reindex", s.ReindexDocument)
}

func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
