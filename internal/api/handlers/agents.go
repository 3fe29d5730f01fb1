package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type agentBody struct {
	Name             string   `json:"name"`
	BaseModelURI     string   `json:"basemodelUri"`
	SystemPrompt     string   `json:"systemPrompt"`
	RAGAssetIDs      []string `json:"ragAssetIds"`
	FunctionAssetIDs []string `json:"functionAssetIds"`
}

func (h *Handlers) validateAgent(ctx context.Context, b *agentBody) error {
	if strings.TrimSpace(b.Name) == "" {
		return apperr.InvalidRequest("agent name is required")
	}
	u, ok := uri.Parse(b.BaseModelURI)
	if !ok || u.Category != uri.CategoryModels {
		return apperr.InvalidRequest("invalid base model URI %q", b.BaseModelURI)
	}
	if _, err := h.Providers.ResolveForChat(b.BaseModelURI); err != nil {
		return apperr.InvalidRequest("no provider handles %q", b.BaseModelURI)
	}
	for _, id := range b.RAGAssetIDs {
		if _, err := h.Store.GetEmbeddingAsset(ctx, id); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.InvalidRequest("unknown embedding asset %q", id)
			}
			return err
		}
	}
	return nil
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if agents == nil {
		agents = []models.AgentRecord{}
	}
	respondJSON(w, http.StatusOK, agents)
}

// CreateAgent assigns a fresh id and the agent's aif://agents/<id> URI.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var body agentBody
	if err := decodeJSON(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := h.validateAgent(r.Context(), &body); err != nil {
		respondErr(w, r, err)
		return
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	agent := &models.AgentRecord{
		ID:               id,
		AgentURI:         uri.MustBuild(uri.ValueScheme, uri.CategoryAgents, id),
		Name:             body.Name,
		BaseModelURI:     body.BaseModelURI,
		SystemPrompt:     body.SystemPrompt,
		RAGAssetIDs:      body.RAGAssetIDs,
		FunctionAssetIDs: body.FunctionAssetIDs,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.Store.CreateAgent(r.Context(), agent); err != nil {
		respondErr(w, r, err)
		return
	}

	log.Info().Str("agent", agent.Name).Str("id", id).Str("model", agent.BaseModelURI).Msg("Agent created")
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// UpdateAgent replaces the editable fields. Id, URI and creation time are kept.
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body agentBody
	if err := decodeJSON(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := h.validateAgent(r.Context(), &body); err != nil {
		respondErr(w, r, err)
		return
	}

	agent.Name = body.Name
	agent.BaseModelURI = body.BaseModelURI
	agent.SystemPrompt = body.SystemPrompt
	agent.RAGAssetIDs = body.RAGAssetIDs
	agent.FunctionAssetIDs = body.FunctionAssetIDs
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentId")
	if err := h.Store.DeleteAgent(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	log.Info().Str("id", id).Msg("Agent deleted")
	w.WriteHeader(http.StatusNoContent)
}
