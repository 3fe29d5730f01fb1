package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/vectorstore"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
)

// Retriever runs similarity searches against registered vector stores.
type Retriever struct {
	vectors  *vectorstore.Registry
	minScore float64
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithMinScore drops matches scoring below min.
func WithMinScore(min float64) RetrieverOption {
	return func(r *Retriever) { r.minScore = min }
}

func NewRetriever(vectors *vectorstore.Registry, opts ...RetrieverOption) *Retriever {
	r := &Retriever{vectors: vectors}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ contracts.Retriever = (*Retriever)(nil)

// SimilaritySearch embeds query with emb and returns the k closest chunks
// of collection, best first.
func (r *Retriever) SimilaritySearch(ctx context.Context, emb contracts.EmbeddingDriver, vectorStore, collection, query string, k int) ([]contracts.Document, error) {
	start := time.Now()
	if k <= 0 {
		k = 1
	}

	vs, err := r.vectors.Get(vectorStore)
	if err != nil {
		return nil, err
	}
	vectors, err := emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}

	results, err := vs.Search(ctx, collection, vectors[0], k, nil)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	docs := make([]contracts.Document, 0, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		docs = append(docs, contracts.Document{Content: res.Doc.Content, Metadata: res.Doc.Metadata, Score: res.Score})
	}

	log.Debug().
		Str("collection", collection).
		Str("vector_store", vs.Kind()).
		Int("results", len(docs)).
		Dur("elapsed", time.Since(start)).
		Msg("Similarity search complete")
	return docs, nil
}
