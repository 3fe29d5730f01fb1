package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Provider Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListProviders returns the masked view of every registered provider.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	views := []*models.ProviderInfoView{}
	for _, p := range h.Providers.List() {
		v, err := p.GetProviderInfo(r.Context(), false)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, views)
}

// GetProvider returns one provider. ?force=true refreshes runtime info first.
func (h *Handlers) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.Providers.Get(chi.URLParam(r, "providerId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	view, err := p.GetProviderInfo(r.Context(), force)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.Providers.Get(chi.URLParam(r, "providerId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var req models.UpdateProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	view, err := p.UpdateProviderInfo(r.Context(), &req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// UpdateModelSelection selects or deselects a model for one feature.
func (h *Handlers) UpdateModelSelection(w http.ResponseWriter, r *http.Request) {
	p, err := h.Providers.Get(chi.URLParam(r, "providerId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var req models.UpdateModelSelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Model == "" {
		respondError(w, http.StatusBadRequest, "model is required")
		return
	}

	view, err := p.UpdateModelSelection(r.Context(), req.Model, req.Feature, req.Selected)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// DownloadModel streams the provider's pull progress as plain text.
// The model is named by the "model" query parameter since local model
// names may contain slashes.
func (h *Handlers) DownloadModel(w http.ResponseWriter, r *http.Request) {
	h.streamModelOp(w, r, "download")
}

// DeleteModel streams the provider's delete output as plain text.
func (h *Handlers) DeleteModel(w http.ResponseWriter, r *http.Request) {
	h.streamModelOp(w, r, "delete")
}

func (h *Handlers) streamModelOp(w http.ResponseWriter, r *http.Request, op string) {
	p, err := h.Providers.Get(chi.URLParam(r, "providerId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" {
		respondError(w, http.StatusBadRequest, "model query parameter is required")
		return
	}

	sw := newStreamWriter(w)
	if op == "download" {
		err = p.DownloadModel(r.Context(), model, sw)
	} else {
		err = p.DeleteModel(r.Context(), model, sw)
	}
	if err != nil {
		log.Warn().Err(err).Str("provider", p.ID()).Str("model", model).Str("op", op).Msg("Model operation failed")
	}
	sw.finish(r, err)
}

// ── Models ───────────────────────────────────────────────────

// ListModels returns the selected models across providers. ?feature filters
// by capability and defaults to all.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	feature := models.FeatureAll
	if f := r.URL.Query().Get("feature"); f != "" {
		feature = models.Feature(f)
		if !feature.Valid() && feature != models.FeatureAll {
			respondErr(w, r, apperr.InvalidRequest("invalid feature %q", f))
			return
		}
	}
	list := h.Providers.ListModels(r.Context(), feature)
	if list == nil {
		list = []*models.ModelInfo{}
	}
	respondJSON(w, http.StatusOK, list)
}
