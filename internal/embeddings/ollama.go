package embeddings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
)

// ollamaDims lists output sizes of common embedding models. Models not
// listed report a guess until their first response reveals the real size.
var ollamaDims = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

const defaultOllamaDims = 768

// OllamaDriver embeds text through a local Ollama runtime's /api/embed.
type OllamaDriver struct {
	endpoint  string
	model     string
	batchSize int
	client    *http.Client
	learned   atomic.Int64 // dimensions seen in a response, 0 until then
}

type OllamaOption func(*OllamaDriver)

// WithOllamaBatchSize caps the texts sent per request.
func WithOllamaBatchSize(size int) OllamaOption {
	return func(d *OllamaDriver) { d.batchSize = size }
}

func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(d *OllamaDriver) { d.client = c }
}

// NewOllamaDriver builds a driver for model served at endpoint (default
// http://localhost:11434).
func NewOllamaDriver(endpoint, model string, opts ...OllamaOption) *OllamaDriver {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	d := &OllamaDriver{
		endpoint:  strings.TrimRight(endpoint, "/"),
		model:     model,
		batchSize: 512,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OllamaDriver) Kind() string      { return "ollama" }
func (d *OllamaDriver) MaxBatchSize() int { return d.batchSize }

func (d *OllamaDriver) Dimensions() int {
	if n := d.learned.Load(); n > 0 {
		return int(n)
	}
	base, _, _ := strings.Cut(d.model, ":")
	if n, ok := ollamaDims[base]; ok {
		return n
	}
	return defaultOllamaDims
}

func (d *OllamaDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, apperr.InvalidRequest("ollama: %d texts exceed the batch limit of %d", len(texts), d.batchSize)
	}

	payload, err := json.Marshal(map[string]any{"model": d.model, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, d.statusError(resp.StatusCode, body)
	}

	rows := gjson.GetBytes(body, "embeddings").Array()
	if len(rows) != len(texts) {
		return nil, fmt.Errorf("ollama: asked for %d embeddings, got %d", len(texts), len(rows))
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		vals := row.Array()
		vec := make([]float64, len(vals))
		for j, v := range vals {
			vec[j] = v.Float()
		}
		out[i] = vec
	}
	d.learned.Store(int64(len(out[0])))
	return out, nil
}

// statusError prefers Ollama's {"error": ...} message over the raw body.
// A 404 means the model has not been pulled.
func (d *OllamaDriver) statusError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	err := fmt.Errorf("ollama embed returned %d: %s", status, msg)
	if status == http.StatusNotFound {
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("ollama: model %q is not available", d.model), err)
	}
	return err
}

// HealthCheck embeds a probe string, which also loads the model.
func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"ping"})
	return err
}
