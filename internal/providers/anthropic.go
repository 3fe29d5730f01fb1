package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

const (
	anthropicEndpoint  = "https://api.anthropic.com"
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic serves Claude chat models from a fixed catalog. It has no
// embedding models.
type Anthropic struct {
	*Base
	opts     *options
	endpoint string
}

func NewAnthropic(st store.ProviderStore, seed map[catalog.PropertyKey]string, opts ...Option) *Anthropic {
	p := &Anthropic{opts: buildOptions(catalog.Anthropic, opts), endpoint: anthropicEndpoint}
	if p.opts.endpoint != "" {
		p.endpoint = strings.TrimRight(p.opts.endpoint, "/")
	}
	p.Base = newBase(p.opts.declared, st, seed, p)
	return p
}

func (p *Anthropic) healthy(_ context.Context, rec *models.ProviderRecord) bool {
	return credentialsPresent(p.declared, rec)
}

func (p *Anthropic) refreshRuntimeInfo(context.Context, *models.ProviderRecord) (bool, error) {
	return false, nil
}

func (p *Anthropic) chatModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.ChatModel, error) {
	props, err := requireProps(rec, catalog.AnthropicAPIKey)
	if err != nil {
		return nil, err
	}
	return &anthropicChatModel{
		client:   p.opts.httpClient,
		endpoint: p.endpoint,
		apiKey:   props[catalog.AnthropicAPIKey],
		model:    model.Last(),
	}, nil
}

func (p *Anthropic) embeddingModel(rec *models.ProviderRecord, _ *uri.ResourceURI) (contracts.EmbeddingDriver, error) {
	return nil, apperr.InvalidOperation("%s: embeddings are not supported", rec.ID)
}

// ── Chat callable ───────────────────────────────────────────

type anthropicChatModel struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (m *anthropicChatModel) Name() string { return m.model }

func (m *anthropicChatModel) Invoke(ctx context.Context, messages []models.ChatMessage) (string, error) {
	body, err := json.Marshal(toAnthropicRequest(m.model, messages))
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, gjson.GetBytes(respBody, "error.message").String())
	}

	var sb strings.Builder
	for _, block := range gjson.GetBytes(respBody, "content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}
	return sb.String(), nil
}

// toAnthropicRequest lifts system messages into the system field, which is
// where the Messages API expects them.
func toAnthropicRequest(model string, messages []models.ChatMessage) anthropicRequest {
	req := anthropicRequest{Model: model, MaxTokens: anthropicMaxTokens}
	var system []string
	for _, msg := range messages {
		if msg.Role == models.MessageSystem {
			system = append(system, msg.Content)
			continue
		}
		am := anthropicMessage{Role: msg.Role}
		if len(msg.ContentParts) == 0 {
			am.Content = []anthropicBlock{{Type: "text", Text: msg.Content}}
		}
		for _, part := range msg.ContentParts {
			if part.Type == "image_url" && part.ImageURL != nil {
				if mediaType, data, ok := splitDataURL(part.ImageURL.URL); ok {
					am.Content = append(am.Content, anthropicBlock{
						Type:   "image",
						Source: &anthropicSource{Type: "base64", MediaType: mediaType, Data: data},
					})
				}
				continue
			}
			am.Content = append(am.Content, anthropicBlock{Type: "text", Text: part.Text})
		}
		req.Messages = append(req.Messages, am)
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

// splitDataURL splits "data:<media>;base64,<data>".
func splitDataURL(s string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(meta, ";base64")
	return mediaType, data, found
}
