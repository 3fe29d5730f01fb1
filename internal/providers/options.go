package providers

import (
	"net/http"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/aifoundry/aifoundry/server/internal/catalog"
)

type options struct {
	declared   *catalog.Declared
	httpClient *http.Client
	endpoint   string
	openAIOpts []option.RequestOption
}

// Option configures a provider.
type Option func(*options)

// WithDeclared replaces the built-in declared catalog.
func WithDeclared(d *catalog.Declared) Option {
	return func(o *options) { o.declared = d }
}

// WithHTTPClient sets the HTTP client used for backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithEndpoint overrides a fixed API endpoint (e.g. to route through a gateway).
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithOpenAIRequestOptions appends options to every openai-go client the provider builds.
func WithOpenAIRequestOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.openAIOpts = append(o.openAIOpts, opts...) }
}

func buildOptions(id string, opts []Option) *options {
	o := &options{httpClient: &http.Client{Timeout: 120 * time.Second}}
	for _, opt := range opts {
		opt(o)
	}
	if o.declared == nil {
		d, ok := catalog.Get(id)
		if !ok {
			panic("providers: no built-in catalog for " + id)
		}
		o.declared = d
	}
	return o
}
