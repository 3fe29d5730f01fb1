// Package vectorstore holds the vector store drivers embedding assets are
// written to: an embedded in-memory store and pgvector. Drivers are looked
// up by name through a Registry.
package vectorstore

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
)

// Driver kinds.
const (
	KindEmbedded = "embedded"
	KindPgvector = "pgvector"
)

// Registry holds named vector store drivers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]contracts.VectorStoreDriver
	def     string
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]contracts.VectorStoreDriver)}
}

// Register adds a driver under name, replacing any previous one. The first
// registered driver becomes the default.
func (r *Registry) Register(name string, driver contracts.VectorStoreDriver) {
	r.mu.Lock()
	r.drivers[name] = driver
	if r.def == "" {
		r.def = name
	}
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", driver.Kind()).Msg("Vector store driver registered")
}

// SetDefault selects the driver used when an asset names none.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[name]; !ok {
		return apperr.NotFound("vector store %q not found", name)
	}
	r.def = name
	return nil
}

// Default returns the default driver name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get returns the driver by name. An empty name selects the default.
func (r *Registry) Get(name string) (contracts.VectorStoreDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	d, ok := r.drivers[name]
	if !ok {
		return nil, apperr.NotFound("vector store %q not found", name)
	}
	return d, nil
}

// List returns the registered driver names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll pings every driver concurrently. A nil value means healthy.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	names := r.List()
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		d, err := r.Get(name)
		if err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			errs[i] = d.HealthCheck(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]error, len(names))
	for i, name := range names {
		out[name] = errs[i]
	}
	return out
}

// Close closes every driver that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, d := range r.drivers {
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
				log.Warn().Err(err).Str("name", name).Msg("Vector store close failed")
			}
		}
	}
	return first
}
