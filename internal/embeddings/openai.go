package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIDriver implements EmbeddingDriver on the OpenAI embeddings API.
// Azure deployments use the same driver with Azure request options.
type OpenAIDriver struct {
	kind       string
	model      string
	dimensions int
	batchSize  int
	client     *openai.Client
}

type openAIConfig struct {
	kind      string
	batchSize int
	opts      []option.RequestOption
}

// OpenAIOption configures the OpenAI driver.
type OpenAIOption func(*openAIConfig)

// WithOpenAIEndpoint sets a custom base URL (e.g. for proxies).
func WithOpenAIEndpoint(baseURL string) OpenAIOption {
	return func(c *openAIConfig) {
		if baseURL != "" {
			c.opts = append(c.opts, option.WithBaseURL(baseURL))
		}
	}
}

// WithOpenAIBatchSize sets the max texts per Embed call.
func WithOpenAIBatchSize(size int) OpenAIOption {
	return func(c *openAIConfig) { c.batchSize = size }
}

// WithOpenAIRequestOptions appends raw client options.
func WithOpenAIRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(c *openAIConfig) { c.opts = append(c.opts, opts...) }
}

// WithOpenAIKind overrides the reported provider kind (e.g. "azureopenai").
func WithOpenAIKind(kind string) OpenAIOption {
	return func(c *openAIConfig) { c.kind = kind }
}

// NewOpenAIDriver creates an OpenAI embedding driver. An empty apiKey leaves
// authentication to the request options.
func NewOpenAIDriver(apiKey, model string, opts ...OpenAIOption) *OpenAIDriver {
	dims := 1536
	if model == "text-embedding-3-large" {
		dims = 3072
	}

	cfg := &openAIConfig{kind: "openai", batchSize: 2048}
	if apiKey != "" {
		cfg.opts = append(cfg.opts, option.WithAPIKey(apiKey))
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &OpenAIDriver{
		kind:       cfg.kind,
		model:      model,
		dimensions: dims,
		batchSize:  cfg.batchSize,
		client:     openai.NewClient(cfg.opts...),
	}
}

func (d *OpenAIDriver) Kind() string      { return d.kind }
func (d *OpenAIDriver) Dimensions() int   { return d.dimensions }
func (d *OpenAIDriver) MaxBatchSize() int { return d.batchSize }

// Embed generates vector embeddings, returned in input order.
func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	resp, err := d.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](openai.EmbeddingNewParamsInputArrayOfStrings(texts)),
		Model: openai.F(openai.EmbeddingModel(d.model)),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", d.kind, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float64, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		out[idx] = item.Embedding
	}
	return out, nil
}

// HealthCheck verifies the API key works with a minimal request.
func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"ping"})
	return err
}
