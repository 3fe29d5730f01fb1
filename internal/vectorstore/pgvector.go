package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// PgvectorStore keeps vectors in PostgreSQL with the pgvector extension.
// The database is user-provided; the table is created on first connect.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions must be positive, got %d", dimensions)
	}
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS aif_vectors (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			vector     vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_aif_vectors_metadata ON aif_vectors USING GIN (metadata);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return KindPgvector }

func (s *PgvectorStore) Upsert(ctx context.Context, collection string, docs []models.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}

	const upsert = `INSERT INTO aif_vectors (collection, id, content, metadata, vector, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
		ON CONFLICT (collection, id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			vector = EXCLUDED.vector`

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, d := range docs {
		if len(d.Vector) != s.dimensions {
			return fmt.Errorf("pgvector: document %q has %d dimensions, store expects %d", d.ID, len(d.Vector), s.dimensions)
		}
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := d.CreatedAt
		if created.IsZero() {
			created = now
		}
		metadata, err := json.Marshal(nonNil(d.Metadata))
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata: %w", err)
		}
		batch.Queue(upsert, collection, id, d.Content, string(metadata), vectorLiteral(d.Vector), created)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}
	return nil
}

func (s *PgvectorStore) Search(ctx context.Context, collection string, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error) {
	query := `SELECT id, content, metadata, created_at, 1 - (vector <=> $1::vector) AS score
		FROM aif_vectors
		WHERE collection = $2`
	args := []any{vectorLiteral(vector), collection}

	if len(filter) > 0 {
		f, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("pgvector: marshal filter: %w", err)
		}
		args = append(args, string(f))
		query += " AND metadata @> $" + strconv.Itoa(len(args)) + "::jsonb"
	}

	args = append(args, topK)
	query += " ORDER BY vector <=> $1::vector LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		doc := models.VectorDoc{Collection: collection}
		var metadata []byte
		var score float64
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &doc.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
		}
		results = append(results, models.SearchResult{Doc: doc, Score: score})
	}
	return results, rows.Err()
}

func (s *PgvectorStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM aif_vectors WHERE collection = $1 AND id = ANY($2)", collection, ids)
	return err
}

func (s *PgvectorStore) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM aif_vectors WHERE collection = $1", collection)
	return err
}

func (s *PgvectorStore) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM aif_vectors WHERE collection = $1", collection).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders v in pgvector's text format, e.g. [1,2.5,3].
func vectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
