package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/api/middleware"
	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/chat"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// AgentHeader names the request header carrying the target agent's URI.
const AgentHeader = "aif-agent-uri"

const (
	maxChatBody = 32 << 20
	maxFileSize = 10 << 20
)

// ══════════════════════════════════════════════════════════════
// ── Chat ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type chatBody struct {
	Text string `json:"text"`
}

// Chat runs one turn and streams the answer as plain text. The body is
// either JSON {"text": ...} or multipart with a "text" field and "files".
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	req := chat.Request{
		SessionID:    middleware.GetSessionID(r.Context()),
		AgentURI:     r.Header.Get(AgentHeader),
		OutputFormat: r.URL.Query().Get("outputFormat"),
	}
	if req.AgentURI == "" {
		respondError(w, http.StatusBadRequest, AgentHeader+" header is required")
		return
	}

	var err error
	req.Text, req.Files, err = readChatBody(w, r)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	stream := h.Chatter.Chat(r.Context(), req)

	// The first Next decides between an error status and a streamed 200.
	first, err := stream.Next(r.Context())
	if err != nil && !errors.Is(err, io.EOF) {
		respondErr(w, r, err)
		return
	}

	sw := newStreamWriter(w)
	if first != "" {
		io.WriteString(sw, first)
	}
	if errors.Is(err, io.EOF) {
		sw.finish(r, nil)
		return
	}
	for chunk, err := range stream.All(r.Context()) {
		if err != nil {
			sw.finish(r, err)
			return
		}
		io.WriteString(sw, chunk)
	}
	sw.finish(r, nil)
}

func readChatBody(w http.ResponseWriter, r *http.Request) (string, []models.ChatFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var body chatBody
		if err := decodeJSON(r, &body); err != nil {
			return "", nil, err
		}
		return body.Text, nil, nil
	}

	if err := r.ParseMultipartForm(maxChatBody); err != nil {
		return "", nil, apperr.InvalidRequest("invalid multipart body: %v", err)
	}
	var files []models.ChatFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readFile(fh)
		if err != nil {
			return "", nil, err
		}
		files = append(files, f)
	}
	return r.FormValue("text"), files, nil
}

func readFile(fh *multipart.FileHeader) (models.ChatFile, error) {
	if fh.Size > maxFileSize {
		return models.ChatFile{}, apperr.InvalidRequest("file %s exceeds %d bytes", fh.Filename, maxFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return models.ChatFile{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.ChatFile{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return models.ChatFile{Name: fh.Filename, ContentType: ct, Data: data}, nil
}

// ChatHistory returns the turns of the caller's current session. A caller
// without a session cookie gets an empty history.
func (h *Handlers) ChatHistory(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.SessionCookie)
	if err != nil || c.Value == "" {
		respondJSON(w, http.StatusOK, []models.ChatTurn{})
		return
	}
	h.respondTurns(w, r, c.Value)
}

// ── Sessions ─────────────────────────────────────────────────

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessions(r.Context(), r.URL.Query().Get("agent"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) GetSessionHistory(w http.ResponseWriter, r *http.Request) {
	h.respondTurns(w, r, chi.URLParam(r, "sessionId"))
}

func (h *Handlers) respondTurns(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.Store.GetSession(r.Context(), sessionID)
	var nf *store.ErrNotFound
	switch {
	case errors.As(err, &nf):
		respondJSON(w, http.StatusOK, []models.ChatTurn{})
		return
	case err != nil:
		respondErr(w, r, err)
		return
	}
	turns := session.Turns
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	respondJSON(w, http.StatusOK, turns)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := h.Chatter.DeleteSession(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	log.Info().Str("session", id).Msg("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}
