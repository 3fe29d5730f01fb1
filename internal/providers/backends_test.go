package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// fakeOllama is a minimal Ollama runtime.
type fakeOllama struct {
	mu     sync.Mutex
	local  map[string]bool
	lastIn map[string]any
}

func (f *fakeOllama) setLocal(name string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if present {
		f.local[name] = true
	} else {
		delete(f.local, name)
	}
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var items []string
		for name := range f.local {
			items = append(items, fmt.Sprintf(`{"name":%q}`, name))
		}
		fmt.Fprintf(w, `{"models":[%s]}`, strings.Join(items, ","))
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastIn))
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hello from ollama"},"done":true}`)
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		name := body["model"].(string)
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","completed":50,"total":100}`)
		fmt.Fprintln(w, `{"status":"success"}`)
		f.setLocal(name+":latest", true)
	})
	mux.HandleFunc("DELETE /api/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		name := body["model"].(string)
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.local[name] && !f.local[name+":latest"] {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model not found"}`)
			return
		}
		delete(f.local, name)
		delete(f.local, name+":latest")
	})
	return mux
}

func newOllamaForTest(t *testing.T, local ...string) (*Ollama, *fakeOllama) {
	t.Helper()
	fake := &fakeOllama{local: map[string]bool{}}
	for _, n := range local {
		fake.local[n] = true
	}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	p := NewOllama(newCountingStore(t), map[catalog.PropertyKey]string{catalog.OllamaEndpoint: srv.URL})
	return p, fake
}

func downloaded(info *models.ProviderInfoView, name string) bool {
	m := findModel(info, name)
	return m != nil && m.IsDownloaded != nil && *m.IsDownloaded
}

func TestOllama_InitSyncsDownloadedFlags(t *testing.T) {
	p, _ := newOllamaForTest(t, "llama3.1:latest")

	info, err := p.GetProviderInfo(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAvailable, info.Status)
	assert.True(t, downloaded(info, "llama3.1"))
	assert.False(t, downloaded(info, "llava"))
}

func TestOllama_ForceRefreshPicksUpRuntimeChanges(t *testing.T) {
	ctx := context.Background()
	p, fake := newOllamaForTest(t)
	require.NoError(t, p.Init(ctx))

	fake.setLocal("llava:latest", true)

	info, err := p.GetProviderInfo(ctx, false)
	require.NoError(t, err)
	assert.False(t, downloaded(info, "llava"))

	info, err = p.GetProviderInfo(ctx, true)
	require.NoError(t, err)
	assert.True(t, downloaded(info, "llava"))
}

func TestOllama_Chat(t *testing.T) {
	ctx := context.Background()
	p, fake := newOllamaForTest(t, "llava:latest")

	m, err := p.GetBaseLanguageModel(ctx, "ollama://models/llava")
	require.NoError(t, err)

	out, err := m.Invoke(ctx, []models.ChatMessage{
		{Role: models.MessageSystem, Content: "be brief"},
		{Role: models.MessageUser, Content: "what is this?", ContentParts: []models.ContentPart{
			{Type: "text", Text: "what is this?"},
			{Type: "image_url", ImageURL: &models.ImageURL{URL: "data:image/png;base64,AAAA"}},
			{Type: "text", Text: "notes.txt:\nsee attached"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from ollama", out)

	assert.Equal(t, "llava", fake.lastIn["model"])
	assert.Equal(t, false, fake.lastIn["stream"])
	msgs := fake.lastIn["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	// Parts carry the full text once the message has attachments.
	assert.Equal(t, "what is this?\nnotes.txt:\nsee attached", user["content"])
	assert.Equal(t, []any{"AAAA"}, user["images"])
}

func TestOllama_DownloadAndDelete(t *testing.T) {
	ctx := context.Background()
	p, _ := newOllamaForTest(t)

	var out strings.Builder
	require.NoError(t, p.DownloadModel(ctx, "ollama://models/llava", &out))
	assert.Contains(t, out.String(), "pulling manifest")
	assert.Contains(t, out.String(), "downloading 50/100")

	info, err := p.GetProviderInfo(ctx, false)
	require.NoError(t, err)
	assert.True(t, downloaded(info, "llava"))

	out.Reset()
	require.NoError(t, p.DeleteModel(ctx, "llava", &out))
	assert.Contains(t, out.String(), "deleted llava")

	info, err = p.GetProviderInfo(ctx, false)
	require.NoError(t, err)
	assert.False(t, downloaded(info, "llava"))

	err = p.DeleteModel(ctx, "llava", io.Discard)
	require.Error(t, err)
}

func TestOllama_SelectMarksDownloaded(t *testing.T) {
	p, _ := newOllamaForTest(t)

	info, err := p.UpdateModelSelection(context.Background(), "nomic-embed-text", models.FeatureEmbedding, true)
	require.NoError(t, err)
	assert.True(t, downloaded(info, "nomic-embed-text"))
}

func TestOllama_UnhealthyWhenRuntimeDown(t *testing.T) {
	p := NewOllama(newCountingStore(t), map[catalog.PropertyKey]string{catalog.OllamaEndpoint: "http://127.0.0.1:1"})

	assert.False(t, p.IsHealthy(context.Background()))
	assert.Empty(t, p.ListLanguageModels(context.Background(), models.FeatureAll))
}

func TestAnthropic_Chat(t *testing.T) {
	var got map[string]any
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		apiKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}]}`)
	}))
	defer srv.Close()

	p := NewAnthropic(newCountingStore(t), map[catalog.PropertyKey]string{catalog.AnthropicAPIKey: "sk-ant"}, WithEndpoint(srv.URL+"/"))
	m, err := p.GetBaseLanguageModel(context.Background(), "anthropic://models/claude-opus-4-20250514")
	require.NoError(t, err)

	out, err := m.Invoke(context.Background(), []models.ChatMessage{
		{Role: models.MessageSystem, Content: "rules"},
		{Role: models.MessageUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
	assert.Equal(t, "sk-ant", apiKey)
	assert.Equal(t, "rules", got["system"])
	assert.Len(t, got["messages"], 1)
}

func TestAnthropic_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p := NewAnthropic(newCountingStore(t), map[catalog.PropertyKey]string{catalog.AnthropicAPIKey: "bad"}, WithEndpoint(srv.URL))
	m, err := p.GetBaseLanguageModel(context.Background(), "anthropic://models/claude-opus-4-20250514")
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), []models.ChatMessage{{Role: models.MessageUser, Content: "hello"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestAnthropic_NoEmbeddings(t *testing.T) {
	p := NewAnthropic(newCountingStore(t), map[catalog.PropertyKey]string{catalog.AnthropicAPIKey: "k"})
	_, err := p.GetBaseEmbeddingsModel(context.Background(), "anthropic://models/claude-opus-4-20250514")
	require.Error(t, err)
}
