// Package router holds the provider registry: every model backend,
// registered once at startup, and the lookup from a model URI to the
// backend that serves it.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/providers"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// healthTimeout bounds a single provider probe in HealthCheck.
const healthTimeout = 5 * time.Second

// Registry routes model URIs to providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []providers.Provider
	byID      map[string]providers.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]providers.Provider)}
}

// RegisterAll initializes and registers providers. A provider whose Init
// fails is still registered; it reports itself unhealthy until it recovers.
func (r *Registry) RegisterAll(ctx context.Context, ps ...providers.Provider) {
	for _, p := range ps {
		if err := p.Init(ctx); err != nil {
			log.Warn().Err(err).Str("provider", p.ID()).Msg("Provider init failed")
		}

		r.mu.Lock()
		if _, dup := r.byID[p.ID()]; dup {
			r.mu.Unlock()
			log.Warn().Str("provider", p.ID()).Msg("Provider already registered, skipping")
			continue
		}
		r.providers = append(r.providers, p)
		r.byID[p.ID()] = p
		r.mu.Unlock()

		log.Info().Str("provider", p.ID()).Bool("local", p.IsLocal()).Msg("Registered provider")
	}
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (providers.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("provider %q not found", id)
	}
	return p, nil
}

// List returns providers in registration order.
func (r *Registry) List() []providers.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]providers.Provider(nil), r.providers...)
}

// ResolveForChat returns the first provider that can handle modelURI.
func (r *Registry) ResolveForChat(modelURI string) (providers.Provider, error) {
	return r.resolve(modelURI, "chat")
}

// ResolveForEmbedding returns the first provider that can handle modelURI.
func (r *Registry) ResolveForEmbedding(modelURI string) (providers.Provider, error) {
	return r.resolve(modelURI, "embedding")
}

// EmbeddingDriver resolves modelURI to its provider and returns the
// embedding driver for that model.
func (r *Registry) EmbeddingDriver(ctx context.Context, modelURI string) (contracts.EmbeddingDriver, error) {
	p, err := r.ResolveForEmbedding(modelURI)
	if err != nil {
		return nil, err
	}
	return p.GetBaseEmbeddingsModel(ctx, modelURI)
}

// ChatModel resolves modelURI to its provider and returns the chat callable.
func (r *Registry) ChatModel(ctx context.Context, modelURI string) (contracts.ChatModel, error) {
	p, err := r.ResolveForChat(modelURI)
	if err != nil {
		return nil, err
	}
	return p.GetBaseLanguageModel(ctx, modelURI)
}

func (r *Registry) resolve(modelURI, purpose string) (providers.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.CanHandle(modelURI) {
			return p, nil
		}
	}
	return nil, apperr.NotFound("no %s provider for %q", purpose, modelURI)
}

// ListModels aggregates the models selected for feature across healthy
// providers. An unhealthy provider contributes nothing.
func (r *Registry) ListModels(ctx context.Context, feature models.Feature) []*models.ModelInfo {
	out := []*models.ModelInfo{}
	for _, p := range r.List() {
		out = append(out, p.ListLanguageModels(ctx, feature)...)
	}
	return out
}

// HealthCheck probes every provider concurrently.
func (r *Registry) HealthCheck(ctx context.Context) map[string]models.ProviderStatus {
	ps := r.List()
	statuses := make([]models.ProviderStatus, len(ps))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range ps {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, healthTimeout)
			defer cancel()
			statuses[i] = models.ProviderUnavailable
			if p.IsHealthy(pctx) {
				statuses[i] = models.ProviderAvailable
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.ProviderStatus, len(ps))
	for i, p := range ps {
		out[p.ID()] = statuses[i]
	}
	return out
}
