package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aifoundry/aifoundry/server/internal/api/handlers"
	"github.com/aifoundry/aifoundry/server/internal/api/middleware"
	"github.com/aifoundry/aifoundry/server/internal/config"
	"github.com/aifoundry/aifoundry/server/internal/metrics"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id", handlers.AgentHeader},
		ExposedHeaders:   []string{"X-Request-Id", middleware.TraceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.HTTP.APIKeys).Middleware)

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.VersionInfo)
	r.Handle("/metrics", metrics.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.With(middleware.Session).Post("/", h.Chat)
			r.Get("/history", h.ChatHistory)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{sessionId}", h.GetSessionHistory)
			r.Delete("/{sessionId}", h.DeleteSession)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Route("/{agentId}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Put("/", h.UpdateAgent)
				r.Delete("/", h.DeleteAgent)
			})
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", h.ListProviders)
			r.Route("/{providerId}", func(r chi.Router) {
				r.Get("/", h.GetProvider)
				r.Patch("/", h.UpdateProvider)
				r.Put("/models", h.UpdateModelSelection)
				r.Delete("/models", h.DeleteModel)
				r.Post("/download", h.DownloadModel)
			})
		})

		r.Get("/models", h.ListModels)

		r.Route("/embeddings", func(r chi.Router) {
			r.Get("/", h.ListEmbeddings)
			r.Post("/", h.CreateEmbedding)
			r.Get("/{assetId}", h.GetEmbedding)
			r.Delete("/{assetId}", h.DeleteEmbedding)
		})
	})

	return r
}
