package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Embedding Asset Handlers ─────────────────────────────────
// ══════════════════════════════════════════════════════════════

// CreateEmbedding ingests documents into a new embedding asset. The body is
// a JSON CreateEmbeddingRequest, or multipart with "name", "modelUri",
// optional "chunkSize"/"chunkOverlap" fields and one document per "files" part.
func (h *Handlers) CreateEmbedding(w http.ResponseWriter, r *http.Request) {
	var (
		req models.CreateEmbeddingRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = readEmbeddingForm(w, r, &req)
	} else {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	asset, err := h.Embeddings.Create(r.Context(), &req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, asset)
}

func readEmbeddingForm(w http.ResponseWriter, r *http.Request, req *models.CreateEmbeddingRequest) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	if err := r.ParseMultipartForm(maxChatBody); err != nil {
		return apperr.InvalidRequest("invalid multipart body: %v", err)
	}
	req.Name = r.FormValue("name")
	req.ModelURI = r.FormValue("modelUri")
	req.ChunkSize, _ = strconv.Atoi(r.FormValue("chunkSize"))
	req.ChunkOverlap, _ = strconv.Atoi(r.FormValue("chunkOverlap"))

	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		req.Documents = append(req.Documents, models.RawDocument{
			ID:      fh.Filename,
			Content: string(data),
		})
	}
	return nil
}

func (h *Handlers) ListEmbeddings(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Embeddings.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if assets == nil {
		assets = []models.EmbeddingAsset{}
	}
	respondJSON(w, http.StatusOK, assets)
}

func (h *Handlers) GetEmbedding(w http.ResponseWriter, r *http.Request) {
	asset, err := h.Embeddings.Get(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, asset)
}

// DeleteEmbedding drops the asset's vector collection and then its record.
func (h *Handlers) DeleteEmbedding(w http.ResponseWriter, r *http.Request) {
	if err := h.Embeddings.Delete(r.Context(), chi.URLParam(r, "assetId")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
