// Package server assembles the AI Foundry server from its configuration.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//	defer srv.Close(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/api"
	"github.com/aifoundry/aifoundry/server/internal/api/handlers"
	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/chat"
	"github.com/aifoundry/aifoundry/server/internal/config"
	"github.com/aifoundry/aifoundry/server/internal/prompt"
	"github.com/aifoundry/aifoundry/server/internal/providers"
	"github.com/aifoundry/aifoundry/server/internal/rag"
	"github.com/aifoundry/aifoundry/server/internal/router"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/internal/telemetry"
	"github.com/aifoundry/aifoundry/server/internal/vectorstore"
)

// Server holds the initialized components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Port is the port the server should listen on.
	Port int

	Store     store.Store
	Providers *router.Registry
	Vectors   *vectorstore.Registry

	shutdownTelemetry func(context.Context) error
}

// New loads the configuration and initializes every component.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	st, err := openStore(ctx, cfg.Store, cfg.DataDir)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	vectors, err := openVectorStores(ctx, cfg.VectorStore)
	if err != nil {
		st.Close()
		shutdown(ctx)
		return nil, err
	}

	registry := router.NewRegistry()
	registry.RegisterAll(ctx, builtinProviders(st, cfg.Providers)...)
	log.Info().Int("providers", len(registry.List())).Msg("✅ Provider registry initialized")

	embeddings := rag.NewService(st, vectors, registry)
	assembler := prompt.NewAssembler(st, st, registry, rag.NewRetriever(vectors))
	orchestrator := chat.NewOrchestrator(st, st, registry, assembler,
		chat.WithTimeout(cfg.Chat.Timeout),
		chat.WithHistoryRetries(cfg.Chat.HistoryRetries),
	)

	h := handlers.New(st, registry, orchestrator, embeddings, vectors, cfg.Version)
	return &Server{
		Handler:           api.NewRouter(cfg, h),
		Port:              cfg.Port,
		Store:             st,
		Providers:         registry,
		Vectors:           vectors,
		shutdownTelemetry: shutdown,
	}, nil
}

// Close flushes telemetry and releases the stores.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(
		s.shutdownTelemetry(ctx),
		s.Vectors.Close(),
		s.Store.Close(),
	)
}

func openStore(ctx context.Context, cfg config.StoreConfig, dataDir string) (store.Store, error) {
	if cfg.Kind == "sqlite" {
		st, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("✅ SQLite store initialized")
		return st, nil
	}
	log.Info().Msg("✅ In-memory store initialized")
	return store.NewMemoryStore(dataDir), nil
}

// openVectorStores always offers the embedded store. With pgvector
// configured, pgvector is registered first and so becomes the default.
func openVectorStores(ctx context.Context, cfg config.VectorStoreConfig) (*vectorstore.Registry, error) {
	vectors := vectorstore.NewRegistry()

	if cfg.Kind == vectorstore.KindPgvector {
		// The database often starts alongside us; give it a few tries.
		b := backoff.WithContext(backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(500*time.Millisecond)), 5), ctx)

		var pg *vectorstore.PgvectorStore
		err := backoff.Retry(func() error {
			var err error
			pg, err = vectorstore.NewPgvectorStore(ctx, cfg.PgvectorURL, cfg.Dimensions)
			if err != nil {
				log.Warn().Err(err).Msg("pgvector not reachable yet")
			}
			return err
		}, b)
		if err != nil {
			return nil, fmt.Errorf("open pgvector: %w", err)
		}
		vectors.Register(vectorstore.KindPgvector, pg)
	}

	vectors.Register(vectorstore.KindEmbedded, vectorstore.NewEmbeddedStore(vectorstore.WithMaxVectors(cfg.MaxVectors)))
	log.Info().Str("default", vectors.Default()).Strs("stores", vectors.List()).Msg("✅ Vector stores initialized")
	return vectors, nil
}

// builtinProviders seeds each provider's credentials from configuration.
// Seeds only apply to records built fresh; persisted edits win.
func builtinProviders(st store.ProviderStore, cfg config.ProvidersConfig) []providers.Provider {
	return []providers.Provider{
		providers.NewOpenAI(st, map[catalog.PropertyKey]string{
			catalog.OpenAIAPIKey:  cfg.OpenAIAPIKey,
			catalog.OpenAIBaseURL: cfg.OpenAIBaseURL,
		}),
		providers.NewAzureOpenAI(st, map[catalog.PropertyKey]string{
			catalog.AzureOpenAIAPIKey:   cfg.AzureOpenAIAPIKey,
			catalog.AzureOpenAIEndpoint: cfg.AzureOpenAIEndpoint,
		}),
		providers.NewAnthropic(st, map[catalog.PropertyKey]string{
			catalog.AnthropicAPIKey: cfg.AnthropicAPIKey,
		}),
		providers.NewOllama(st, map[catalog.PropertyKey]string{
			catalog.OllamaEndpoint: cfg.OllamaEndpoint,
		}),
	}
}
