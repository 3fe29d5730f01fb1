package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/pkg/models"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single generic entities table keyed by
// (kind, id). Entity bodies are stored as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %q: %w", path, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			kind       TEXT NOT NULL,
			id         TEXT NOT NULL,
			parent     TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities (kind, parent);
	`)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error {
	log.Info().Msg("SQLite store closed")
	return s.db.Close()
}

// ── Generic entity helpers ──────────────────────────────────

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func put(ctx context.Context, q querier, kind, id, parent string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO entities (kind, id, parent, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET parent = excluded.parent, data = excluded.data, updated_at = excluded.updated_at`,
		kind, id, parent, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	return nil
}

func get(ctx context.Context, q querier, kind, id string, v any) error {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM entities WHERE kind = ? AND id = ?`, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return &ErrNotFound{Entity: kind, Key: id}
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) del(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: kind, Key: id}
	}
	return nil
}

// list decodes every entity of kind (optionally restricted to parent) via decode.
func (s *SQLiteStore) list(ctx context.Context, kind, parent string, decode func([]byte) error) error {
	query := `SELECT data FROM entities WHERE kind = ?`
	args := []any{kind}
	if parent != "" {
		query += ` AND parent = ?`
		args = append(args, parent)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := decode([]byte(data)); err != nil {
			return fmt.Errorf("unmarshal %s: %w", kind, err)
		}
	}
	return rows.Err()
}

// ── Provider Store ──────────────────────────────────────────

func (s *SQLiteStore) GetProviderRecord(ctx context.Context, id string) (*models.ProviderRecord, error) {
	var rec models.ProviderRecord
	if err := get(ctx, s.db, KindProvider, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveProviderRecord(ctx context.Context, rec *models.ProviderRecord) error {
	return put(ctx, s.db, KindProvider, rec.ID, "", rec)
}

func (s *SQLiteStore) ListProviderRecords(ctx context.Context) ([]models.ProviderRecord, error) {
	var result []models.ProviderRecord
	err := s.list(ctx, KindProvider, "", func(b []byte) error {
		var rec models.ProviderRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return err
		}
		result = append(result, rec)
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

// ── Agent Store ─────────────────────────────────────────────

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]models.AgentRecord, error) {
	var result []models.AgentRecord
	err := s.list(ctx, KindAgent, "", func(b []byte) error {
		var a models.AgentRecord
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		result = append(result, a)
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, err
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.AgentRecord, error) {
	var a models.AgentRecord
	if err := get(ctx, s.db, KindAgent, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *models.AgentRecord) error {
	return put(ctx, s.db, KindAgent, agent.ID, "", agent)
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *models.AgentRecord) error {
	var existing models.AgentRecord
	if err := get(ctx, s.db, KindAgent, agent.ID, &existing); err != nil {
		return err
	}
	return put(ctx, s.db, KindAgent, agent.ID, "", agent)
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	return s.del(ctx, KindAgent, id)
}

// ── Session Store ───────────────────────────────────────────

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var sess models.ChatSession
	if err := get(ctx, s.db, KindSession, id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// AppendTurn reads, appends and writes the session inside one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, agentID string, turn models.ChatTurn) error {
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var sess models.ChatSession
	err = get(ctx, tx, KindSession, sessionID, &sess)
	var nf *ErrNotFound
	switch {
	case errors.As(err, &nf):
		sess = models.ChatSession{ID: sessionID, AgentID: agentID, CreatedAt: now}
	case err != nil:
		return err
	}
	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = now

	if err := put(ctx, tx, KindSession, sessionID, sess.AgentID, &sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, agentID string) ([]models.ChatSession, error) {
	var result []models.ChatSession
	err := s.list(ctx, KindSession, agentID, func(b []byte) error {
		var sess models.ChatSession
		if err := json.Unmarshal(b, &sess); err != nil {
			return err
		}
		result = append(result, sess)
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return s.del(ctx, KindSession, id)
}

// ── Embedding Asset Store ───────────────────────────────────

func (s *SQLiteStore) ListEmbeddingAssets(ctx context.Context) ([]models.EmbeddingAsset, error) {
	var result []models.EmbeddingAsset
	err := s.list(ctx, KindEmbeddingAsset, "", func(b []byte) error {
		var e models.EmbeddingAsset
		if err := json.Unmarshal(b, &e); err != nil {
			return err
		}
		result = append(result, e)
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, err
}

func (s *SQLiteStore) GetEmbeddingAsset(ctx context.Context, id string) (*models.EmbeddingAsset, error) {
	var e models.EmbeddingAsset
	if err := get(ctx, s.db, KindEmbeddingAsset, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) SaveEmbeddingAsset(ctx context.Context, asset *models.EmbeddingAsset) error {
	return put(ctx, s.db, KindEmbeddingAsset, asset.ID, "", asset)
}

func (s *SQLiteStore) DeleteEmbeddingAsset(ctx context.Context, id string) error {
	return s.del(ctx, KindEmbeddingAsset, id)
}
