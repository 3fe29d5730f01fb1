package embeddings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/embeddings"
)

func TestOllamaDriverEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mxbai-embed-large", req.Model)

		out := make([][]float64, len(req.Input))
		for i := range req.Input {
			out[i] = []float64{float64(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer srv.Close()

	d := embeddings.NewOllamaDriver(srv.URL+"/", "mxbai-embed-large")
	assert.Equal(t, 1024, d.Dimensions())
	assert.Equal(t, "ollama", d.Kind())

	vecs, err := d.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, vecs)
	assert.NoError(t, d.HealthCheck(context.Background()))
}

func TestOllamaDriverBatchLimit(t *testing.T) {
	d := embeddings.NewOllamaDriver("http://unused", "nomic-embed-text", embeddings.WithOllamaBatchSize(1))
	_, err := d.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)

	vecs, err := d.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestOllamaDriverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := embeddings.NewOllamaDriver(srv.URL, "missing").Embed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "404")
}

func TestOpenAIDriverEmbedKeepsInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.5]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("sk-test", "text-embedding-3-small",
		embeddings.WithOpenAIEndpoint(srv.URL+"/"),
		embeddings.WithOpenAIRequestOptions(option.WithMaxRetries(0)),
	)
	assert.Equal(t, 1536, d.Dimensions())

	vecs, err := d.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0.5, 0.5}}, vecs)
}

func TestOllamaDriverLearnsDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"custom","embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOllamaDriver(srv.URL, "custom:7b")
	assert.Equal(t, 768, d.Dimensions())

	_, err := d.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Dimensions())
}

func TestOllamaDriverMissingModelIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"ghost\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	_, err := embeddings.NewOllamaDriver(srv.URL, "ghost").Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.ErrorContains(t, err, "try pulling it first")
}
