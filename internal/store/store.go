// Package store provides the persistence interface and its implementations:
// an in-memory store with JSON snapshots and a SQLite store.
package store

import (
	"context"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// Store is the persistence contract used by providers, agents and chat.
// Entities are keyed by kind and id; no write spans more than one entity.
type Store interface {
	ProviderStore
	AgentStore
	SessionStore
	EmbeddingAssetStore

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Provider Store ──────────────────────────────────────────

// ProviderStore holds the durable copy of each provider's record, keyed by provider id.
type ProviderStore interface {
	GetProviderRecord(ctx context.Context, id string) (*models.ProviderRecord, error)
	SaveProviderRecord(ctx context.Context, rec *models.ProviderRecord) error
	ListProviderRecords(ctx context.Context) ([]models.ProviderRecord, error)
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	ListAgents(ctx context.Context) ([]models.AgentRecord, error)
	GetAgent(ctx context.Context, id string) (*models.AgentRecord, error)
	CreateAgent(ctx context.Context, agent *models.AgentRecord) error
	UpdateAgent(ctx context.Context, agent *models.AgentRecord) error
	DeleteAgent(ctx context.Context, id string) error
}

// ── Session Store ───────────────────────────────────────────

// SessionStore manages append-only chat histories.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)

	// AppendTurn appends one turn, creating the session for agentID if it
	// does not exist yet.
	AppendTurn(ctx context.Context, sessionID, agentID string, turn models.ChatTurn) error

	// ListSessions returns sessions for agentID, or all sessions when agentID is empty.
	ListSessions(ctx context.Context, agentID string) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// ── Embedding Asset Store ───────────────────────────────────

type EmbeddingAssetStore interface {
	ListEmbeddingAssets(ctx context.Context) ([]models.EmbeddingAsset, error)
	GetEmbeddingAsset(ctx context.Context, id string) (*models.EmbeddingAsset, error)
	SaveEmbeddingAsset(ctx context.Context, asset *models.EmbeddingAsset) error
	DeleteEmbeddingAsset(ctx context.Context, id string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

func (e *ErrNotFound) ErrKind() apperr.Kind { return apperr.KindNotFound }

// Entity kinds used as generic keys.
const (
	KindProvider       = "provider"
	KindAgent          = "agent"
	KindSession        = "session"
	KindEmbeddingAsset = "embedding"
)
