// Package handlers implements the HTTP handlers for the AI Foundry server.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/chat"
	"github.com/aifoundry/aifoundry/server/internal/rag"
	"github.com/aifoundry/aifoundry/server/internal/router"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/internal/vectorstore"
)

// Chatter starts chat turns and owns session lifetimes.
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) *chat.Stream
	DeleteSession(ctx context.Context, id string) error
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Store      store.Store
	Providers  *router.Registry
	Chatter    Chatter
	Embeddings *rag.Service
	Vectors    *vectorstore.Registry
	Version    string
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, providers *router.Registry, c Chatter, embeddings *rag.Service, vectors *vectorstore.Registry, version string) *Handlers {
	return &Handlers{
		Store:      s,
		Providers:  providers,
		Chatter:    c,
		Embeddings: embeddings,
		Vectors:    vectors,
		Version:    version,
	}
}

// ── Health & Info ────────────────────────────────────────────

// Health reports provider availability and vector store reachability.
// An unconfigured provider is not a degradation; an unreachable vector store is.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	stores := map[string]string{}
	for name, err := range h.Vectors.HealthCheckAll(r.Context()) {
		if err != nil {
			stores[name] = err.Error()
			status = "degraded"
			continue
		}
		stores[name] = "ok"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"service":      "aifoundry-server",
		"providers":    h.Providers.HealthCheck(r.Context()),
		"vectorStores": stores,
	})
}

func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": "aifoundry-server",
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err onto its taxonomy status. Internal errors are logged.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	respondError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidRequest("request body is empty")
		}
		return apperr.InvalidRequest("invalid request body: %v", err)
	}
	return nil
}

// streamWriter commits a 200 text response on its first write and flushes
// every write, so errors raised before any output can still be answered
// with a proper status.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	f, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: f}
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("X-Content-Type-Options", "nosniff")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	n, err := s.w.Write(p)
	s.Flush()
	return n, err
}

func (s *streamWriter) Flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// finish ends a streamed response. Before any output err becomes a JSON
// error; after it, the error text is appended in-band.
func (s *streamWriter) finish(r *http.Request, err error) {
	switch {
	case err == nil && !s.started:
		s.Write(nil)
	case err == nil:
	case !s.started:
		respondErr(s.w, r, err)
	default:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Stream failed after output began")
		io.WriteString(s, "\n"+err.Error())
	}
}
