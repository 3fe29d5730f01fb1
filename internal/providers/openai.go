package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/embeddings"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// OpenAI serves OpenAI hosted models through openai-go.
type OpenAI struct {
	*Base
	opts *options
}

// NewOpenAI creates the OpenAI provider. seed supplies initial property
// values used only when a fresh record is built.
func NewOpenAI(st store.ProviderStore, seed map[catalog.PropertyKey]string, opts ...Option) *OpenAI {
	p := &OpenAI{opts: buildOptions(catalog.OpenAI, opts)}
	p.Base = newBase(p.opts.declared, st, seed, p)
	return p
}

func (p *OpenAI) healthy(_ context.Context, rec *models.ProviderRecord) bool {
	return credentialsPresent(p.declared, rec)
}

func (p *OpenAI) refreshRuntimeInfo(context.Context, *models.ProviderRecord) (bool, error) {
	return false, nil
}

func (p *OpenAI) clientOptions(rec *models.ProviderRecord) ([]option.RequestOption, error) {
	props, err := requireProps(rec, catalog.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(props[catalog.OpenAIAPIKey]),
		option.WithHTTPClient(p.opts.httpClient),
	}
	if base := optionalProp(rec, catalog.OpenAIBaseURL, ""); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return append(opts, p.opts.openAIOpts...), nil
}

func (p *OpenAI) chatModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.ChatModel, error) {
	opts, err := p.clientOptions(rec)
	if err != nil {
		return nil, err
	}
	return &openAIChatModel{client: openai.NewClient(opts...), model: model.Last(), provider: rec.ID}, nil
}

func (p *OpenAI) embeddingModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.EmbeddingDriver, error) {
	opts, err := p.clientOptions(rec)
	if err != nil {
		return nil, err
	}
	return embeddings.NewOpenAIDriver("", model.Last(), embeddings.WithOpenAIRequestOptions(opts...)), nil
}

// ── Chat callable ───────────────────────────────────────────

// openAIChatModel is shared by the OpenAI and Azure OpenAI providers.
type openAIChatModel struct {
	client   *openai.Client
	model    string
	provider string
}

func (m *openAIChatModel) Name() string { return m.model }

func (m *openAIChatModel) Invoke(ctx context.Context, messages []models.ChatMessage) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(toOpenAIMessages(messages)),
		Model:    openai.F(openai.ChatModel(m.model)),
	})
	if err != nil {
		return "", fmt.Errorf("%s: chat completion: %w", m.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(m.provider + ": chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.MessageSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case models.MessageAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			if len(msg.ContentParts) == 0 {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.ContentParts))
			for _, part := range msg.ContentParts {
				switch {
				case part.Type == "image_url" && part.ImageURL != nil:
					img := openai.ChatCompletionContentPartImageImageURLParam{URL: openai.String(part.ImageURL.URL)}
					if part.ImageURL.Detail != "" {
						img.Detail = openai.F(openai.ChatCompletionContentPartImageImageURLDetail(part.ImageURL.Detail))
					}
					parts = append(parts, openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.F(img),
						Type:     openai.F(openai.ChatCompletionContentPartImageTypeImageURL),
					})
				default:
					parts = append(parts, openai.TextPart(part.Text))
				}
			}
			out = append(out, openai.UserMessageParts(parts...))
		}
	}
	return out
}
