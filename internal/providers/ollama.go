package providers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/embeddings"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// Ollama serves models from a local Ollama runtime. Its catalog tracks which
// models are downloaded; downloads and deletions go through the runtime.
type Ollama struct {
	*Base
	opts *options
}

func NewOllama(st store.ProviderStore, seed map[catalog.PropertyKey]string, opts ...Option) *Ollama {
	p := &Ollama{opts: buildOptions(catalog.Ollama, opts)}
	p.Base = newBase(p.opts.declared, st, seed, p)
	return p
}

func (p *Ollama) endpoint(rec *models.ProviderRecord) string {
	return strings.TrimRight(optionalProp(rec, catalog.OllamaEndpoint, defaultOllamaEndpoint), "/")
}

func (p *Ollama) healthy(ctx context.Context, rec *models.ProviderRecord) bool {
	_, err := p.tags(ctx, rec)
	return err == nil
}

// tags returns the names of locally available models.
func (p *Ollama) tags(ctx context.Context, rec *models.ProviderRecord) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(rec)+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := p.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read tags: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: tags status %d", resp.StatusCode)
	}

	names := map[string]bool{}
	for _, n := range gjson.GetBytes(body, "models.#.name").Array() {
		name := n.String()
		names[name] = true
		names[strings.TrimSuffix(name, ":latest")] = true
	}
	return names, nil
}

// refreshRuntimeInfo syncs each catalog entry's downloaded flag with the runtime.
func (p *Ollama) refreshRuntimeInfo(ctx context.Context, rec *models.ProviderRecord) (bool, error) {
	names, err := p.tags(ctx, rec)
	if err != nil {
		return false, err
	}
	changed := false
	for _, m := range rec.ModelMap {
		present := names[m.Name]
		if m.IsDownloaded == nil || *m.IsDownloaded != present {
			m.IsDownloaded = &present
			changed = true
		}
	}
	return changed, nil
}

func (p *Ollama) chatModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.ChatModel, error) {
	return &ollamaChatModel{client: p.opts.httpClient, endpoint: p.endpoint(rec), model: model.Last()}, nil
}

func (p *Ollama) embeddingModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.EmbeddingDriver, error) {
	return embeddings.NewOllamaDriver(p.endpoint(rec), model.Last(), embeddings.WithOllamaHTTPClient(p.opts.httpClient)), nil
}

// ── Download / delete ───────────────────────────────────────

// DownloadModel pulls a model, streaming progress lines to out, then marks
// it downloaded in the catalog.
func (p *Ollama) DownloadModel(ctx context.Context, id string, out io.Writer) error {
	name, err := p.modelName(id)
	if err != nil {
		return err
	}
	rec, err := p.snapshot(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{"model": name, "stream": true})
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(rec)+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can take far longer than the chat timeout.
	client := *p.opts.httpClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: pull %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: pull %s: status %d: %s", name, resp.StatusCode, gjson.GetBytes(msg, "error").String())
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if e := gjson.GetBytes(line, "error"); e.Exists() {
			return fmt.Errorf("ollama: pull %s: %s", name, e.String())
		}
		status := gjson.GetBytes(line, "status").String()
		total := gjson.GetBytes(line, "total").Int()
		if total > 0 {
			fmt.Fprintf(out, "%s %d/%d\n", status, gjson.GetBytes(line, "completed").Int(), total)
		} else {
			fmt.Fprintln(out, status)
		}
		if f, ok := out.(http.Flusher); ok {
			f.Flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama: pull %s: read progress: %w", name, err)
	}

	log.Info().Str("model", name).Msg("Ollama model downloaded")
	return p.setDownloaded(ctx, name, true)
}

// DeleteModel removes a model from the runtime and clears its downloaded flag.
func (p *Ollama) DeleteModel(ctx context.Context, id string, out io.Writer) error {
	name, err := p.modelName(id)
	if err != nil {
		return err
	}
	rec, err := p.snapshot(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"model": name})
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.endpoint(rec)+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: delete %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return apperr.NotFound("ollama: model %s is not downloaded", name)
	default:
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: delete %s: status %d: %s", name, resp.StatusCode, gjson.GetBytes(msg, "error").String())
	}

	fmt.Fprintf(out, "deleted %s\n", name)
	return p.setDownloaded(ctx, name, false)
}

func (p *Ollama) setDownloaded(ctx context.Context, name string, downloaded bool) error {
	_, err := p.mutate(ctx, func(rec *models.ProviderRecord) (bool, error) {
		m, ok := rec.ModelMap[name]
		if !ok || (m.IsDownloaded != nil && *m.IsDownloaded == downloaded) {
			return false, nil
		}
		m.IsDownloaded = &downloaded
		return true, nil
	})
	return err
}

// ── Chat callable ───────────────────────────────────────────

type ollamaChatModel struct {
	client   *http.Client
	endpoint string
	model    string
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64, no data: prefix
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

func (m *ollamaChatModel) Name() string { return m.model }

func (m *ollamaChatModel) Invoke(ctx context.Context, messages []models.ChatMessage) (string, error) {
	req := ollamaChatRequest{Model: m.model, Stream: false}
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role}
		if len(msg.ContentParts) == 0 {
			om.Content = msg.Content
		}
		for _, part := range msg.ContentParts {
			if part.Type == "image_url" && part.ImageURL != nil {
				if _, data, ok := splitDataURL(part.ImageURL.URL); ok {
					om.Images = append(om.Images, data)
				}
				continue
			}
			if om.Content != "" {
				om.Content += "\n"
			}
			om.Content += part.Text
		}
		req.Messages = append(req.Messages, om)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, gjson.GetBytes(respBody, "error").String())
	}
	return gjson.GetBytes(respBody, "message.content").String(), nil
}
