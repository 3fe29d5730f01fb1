// Package contracts defines the service interfaces shared by the provider,
// retrieval and chat layers. Concrete implementations live under internal/.
package contracts

import (
	"context"

	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// ── Chat Model ──────────────────────────────────────────────

// ChatModel is a callable bound to one provider model. Invoke is atomic:
// it returns the complete answer or an error.
type ChatModel interface {
	// Name returns the bound model name.
	Name() string

	// Invoke sends the ordered messages and returns the assistant's reply.
	Invoke(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// ── Embedding Driver ────────────────────────────────────────

// EmbeddingDriver turns texts into vectors.
// Implementations: internal/embeddings.OllamaDriver, internal/embeddings.OpenAIDriver.
type EmbeddingDriver interface {
	// Kind returns the backing provider id (e.g., "ollama", "openai").
	Kind() string

	// Dimensions returns the vector size produced by the bound model.
	Dimensions() int

	// MaxBatchSize returns the max texts per Embed call.
	MaxBatchSize() int

	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Vector Store Driver ─────────────────────────────────────

// VectorStoreDriver stores and searches vectors grouped in named collections.
// Implementations: internal/vectorstore.EmbeddedStore, internal/vectorstore.PgvectorStore.
type VectorStoreDriver interface {
	Kind() string
	Upsert(ctx context.Context, collection string, docs []models.VectorDoc) error
	Search(ctx context.Context, collection string, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error)
	Delete(ctx context.Context, collection string, ids []string) error
	DeleteCollection(ctx context.Context, collection string) error
	Count(ctx context.Context, collection string) (int, error)
	HealthCheck(ctx context.Context) error
}

// ── Retrieval ───────────────────────────────────────────────

// Document is a retrieved text chunk.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Retriever runs a similarity search for query in one collection of a vector
// store, embedding the query with emb. Results are ordered best first.
type Retriever interface {
	SimilaritySearch(ctx context.Context, emb EmbeddingDriver, vectorStore, collection, query string, k int) ([]Document, error)
}
