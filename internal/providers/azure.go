package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/embeddings"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// DefaultAzureAPIVersion is used when a model URI has no version parameter.
const DefaultAzureAPIVersion = "2024-07-01-preview"

// AzureOpenAI serves Azure OpenAI deployments. The model name in a URI is
// the deployment name; the "version" parameter selects the API version:
//
//	azureopenai://models/gpt-4o-mini?version=2024-07-01-preview
type AzureOpenAI struct {
	*Base
	opts *options
}

func NewAzureOpenAI(st store.ProviderStore, seed map[catalog.PropertyKey]string, opts ...Option) *AzureOpenAI {
	p := &AzureOpenAI{opts: buildOptions(catalog.AzureOpenAI, opts)}
	p.Base = newBase(p.opts.declared, st, seed, p)
	return p
}

func (p *AzureOpenAI) healthy(_ context.Context, rec *models.ProviderRecord) bool {
	return credentialsPresent(p.declared, rec)
}

func (p *AzureOpenAI) refreshRuntimeInfo(context.Context, *models.ProviderRecord) (bool, error) {
	return false, nil
}

// clientOptions points the client at the deployment and authenticates with
// the api-key header instead of a bearer token.
func (p *AzureOpenAI) clientOptions(rec *models.ProviderRecord, model *uri.ResourceURI) ([]option.RequestOption, error) {
	props, err := requireProps(rec, catalog.AzureOpenAIAPIKey, catalog.AzureOpenAIEndpoint)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(props[catalog.AzureOpenAIEndpoint], "/") +
		"/openai/deployments/" + url.PathEscape(model.Last()) + "/"
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithHeader("api-key", props[catalog.AzureOpenAIAPIKey]),
		option.WithQuery("api-version", model.Param("version", DefaultAzureAPIVersion)),
		option.WithHTTPClient(p.opts.httpClient),
	}
	return append(opts, p.opts.openAIOpts...), nil
}

func (p *AzureOpenAI) chatModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.ChatModel, error) {
	opts, err := p.clientOptions(rec, model)
	if err != nil {
		return nil, err
	}
	return &openAIChatModel{client: openai.NewClient(opts...), model: model.Last(), provider: rec.ID}, nil
}

func (p *AzureOpenAI) embeddingModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.EmbeddingDriver, error) {
	opts, err := p.clientOptions(rec, model)
	if err != nil {
		return nil, err
	}
	return embeddings.NewOpenAIDriver("", model.Last(),
		embeddings.WithOpenAIKind(catalog.AzureOpenAI),
		embeddings.WithOpenAIRequestOptions(opts...),
	), nil
}
