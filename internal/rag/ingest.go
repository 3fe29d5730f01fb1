package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/internal/vectorstore"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// EmbeddingSource returns the embedding driver behind a model URI.
type EmbeddingSource interface {
	EmbeddingDriver(ctx context.Context, modelURI string) (contracts.EmbeddingDriver, error)
}

// Service manages embedding assets. Each asset's chunks live in a vector
// store collection named by the asset id.
type Service struct {
	assets  store.EmbeddingAssetStore
	vectors *vectorstore.Registry
	source  EmbeddingSource
}

func NewService(assets store.EmbeddingAssetStore, vectors *vectorstore.Registry, source EmbeddingSource) *Service {
	return &Service{assets: assets, vectors: vectors, source: source}
}

// Create chunks and embeds the request's documents into a new asset. The
// asset record is saved only after its vectors are stored.
func (s *Service) Create(ctx context.Context, req *models.CreateEmbeddingRequest) (*models.EmbeddingAsset, error) {
	start := time.Now()
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.InvalidRequest("embedding asset name is required")
	}
	if len(req.Documents) == 0 {
		return nil, apperr.InvalidRequest("embedding asset %q has no documents", req.Name)
	}

	emb, err := s.source.EmbeddingDriver(ctx, req.ModelURI)
	if err != nil {
		return nil, err
	}
	vs, err := s.vectors.Get("")
	if err != nil {
		return nil, err
	}

	asset := &models.EmbeddingAsset{
		ID:          uuid.NewString(),
		Name:        req.Name,
		ModelURI:    req.ModelURI,
		VectorStore: s.vectors.Default(),
		CreatedAt:   time.Now().UTC(),
	}

	chunker := NewChunker(req.ChunkSize, req.ChunkOverlap)
	var docs []models.VectorDoc
	for i, raw := range req.Documents {
		source := raw.ID
		if source == "" {
			source = strconv.Itoa(i)
		}
		for j, text := range chunker.Split(raw.Content) {
			meta := map[string]string{"source": source, "chunk": strconv.Itoa(j)}
			for k, v := range raw.Metadata {
				meta[k] = v
			}
			docs = append(docs, models.VectorDoc{
				ID:       fmt.Sprintf("%s-%d", source, j),
				Content:  text,
				Metadata: meta,
			})
		}
	}
	if len(docs) == 0 {
		return nil, apperr.InvalidRequest("embedding asset %q has only blank documents", req.Name)
	}

	if err := embedAll(ctx, emb, docs); err != nil {
		return nil, err
	}
	if err := vs.Upsert(ctx, asset.ID, docs); err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}
	asset.Documents = len(docs)

	if err := s.assets.SaveEmbeddingAsset(ctx, asset); err != nil {
		if derr := vs.DeleteCollection(ctx, asset.ID); derr != nil {
			log.Warn().Err(derr).Str("asset", asset.ID).Msg("Failed to clean up vectors of unsaved asset")
		}
		return nil, fmt.Errorf("save embedding asset: %w", err)
	}

	log.Info().
		Str("asset", asset.ID).
		Str("model", asset.ModelURI).
		Int("documents", len(req.Documents)).
		Int("chunks", len(docs)).
		Dur("elapsed", time.Since(start)).
		Msg("Embedding asset created")
	return asset, nil
}

// embedAll fills in docs' vectors in batches the driver accepts.
func embedAll(ctx context.Context, emb contracts.EmbeddingDriver, docs []models.VectorDoc) error {
	batch := emb.MaxBatchSize()
	if batch <= 0 {
		batch = len(docs)
	}
	for i := 0; i < len(docs); i += batch {
		end := min(i+batch, len(docs))
		texts := make([]string, 0, end-i)
		for _, d := range docs[i:end] {
			texts = append(texts, d.Content)
		}
		vectors, err := emb.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", i, end, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", i, end, len(vectors), len(texts))
		}
		for j, v := range vectors {
			docs[i+j].Vector = v
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]models.EmbeddingAsset, error) {
	return s.assets.ListEmbeddingAssets(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*models.EmbeddingAsset, error) {
	return s.assets.GetEmbeddingAsset(ctx, id)
}

// Delete drops the asset's vectors, then its record.
func (s *Service) Delete(ctx context.Context, id string) error {
	asset, err := s.assets.GetEmbeddingAsset(ctx, id)
	if err != nil {
		return err
	}
	vs, err := s.vectors.Get(asset.VectorStore)
	if err != nil {
		return err
	}
	if err := vs.DeleteCollection(ctx, asset.ID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.assets.DeleteEmbeddingAsset(ctx, id); err != nil {
		return err
	}
	log.Info().Str("asset", id).Msg("Embedding asset deleted")
	return nil
}
