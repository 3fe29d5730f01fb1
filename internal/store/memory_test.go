package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// newTestStore creates a fresh in-memory store persisting into a temp dir.
func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(t.TempDir())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestMemoryStore_SnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := store.NewMemoryStore(dir)
	require.NoError(t, s1.SaveProviderRecord(ctx, &models.ProviderRecord{ID: "ollama", ModelMapVersion: 3}))
	require.NoError(t, s1.AppendTurn(ctx, "sess-1", "agent-1", textTurn(models.RoleUser, "hi")))
	require.NoError(t, s1.Close())

	s2 := store.NewMemoryStore(dir)
	defer s2.Close()

	rec, err := s2.GetProviderRecord(ctx, "ollama")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ModelMapVersion)

	sess, err := s2.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "hi", sess.Turns[0].Text())
}

func TestMemoryStore_NewerSnapshotIsLeftAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	original := []byte(`{"version": 99, "agents": {"a": {"id": "a"}}}`)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	s := store.NewMemoryStore(dir)
	ctx := context.Background()
	_, err := s.GetAgent(ctx, "a")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, s.CreateAgent(ctx, &models.AgentRecord{ID: "b"}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore("")
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

// ── Shared suite ────────────────────────────────────────────

func textTurn(role models.ChatRole, text string) models.ChatTurn {
	return models.ChatTurn{Role: role, Content: []models.ContentItem{{Type: models.ContentText, Text: text}}}
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("provider records are copies", func(t *testing.T) {
		s := newStore(t)
		rec := &models.ProviderRecord{
			ID:       "openai",
			ModelMap: map[string]*models.ModelInfo{"gpt-4o": {Name: "gpt-4o", Features: []models.Feature{models.FeatureConversational}}},
		}
		require.NoError(t, s.SaveProviderRecord(ctx, rec))
		rec.ModelMap["gpt-4o"].Features = nil

		got, err := s.GetProviderRecord(ctx, "openai")
		require.NoError(t, err)
		assert.Equal(t, []models.Feature{models.FeatureConversational}, got.ModelMap["gpt-4o"].Features)

		list, err := s.ListProviderRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("missing provider is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProviderRecord(ctx, "nope")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("agent crud", func(t *testing.T) {
		s := newStore(t)
		a := &models.AgentRecord{ID: "a1", Name: "helper", BaseModelURI: "ollama://models/llama3", CreatedAt: time.Now()}
		require.NoError(t, s.CreateAgent(ctx, a))

		got, err := s.GetAgent(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "helper", got.Name)

		got.SystemPrompt = "be brief"
		require.NoError(t, s.UpdateAgent(ctx, got))
		got, err = s.GetAgent(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "be brief", got.SystemPrompt)

		err = s.UpdateAgent(ctx, &models.AgentRecord{ID: "missing"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		list, err := s.ListAgents(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteAgent(ctx, "a1"))
		_, err = s.GetAgent(ctx, "a1")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.Error(t, s.DeleteAgent(ctx, "a1"))
	})

	t.Run("sessions append in order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AppendTurn(ctx, "s1", "a1", textTurn(models.RoleUser, "q")))
		require.NoError(t, s.AppendTurn(ctx, "s1", "a1", textTurn(models.RoleAssistant, "a")))
		require.NoError(t, s.AppendTurn(ctx, "s2", "a2", textTurn(models.RoleUser, "other")))

		sess, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "a1", sess.AgentID)
		require.Len(t, sess.Turns, 2)
		assert.Equal(t, models.RoleUser, sess.Turns[0].Role)
		assert.Equal(t, "a", sess.Turns[1].Text())
		assert.False(t, sess.Turns[0].CreatedAt.IsZero())

		byAgent, err := s.ListSessions(ctx, "a1")
		require.NoError(t, err)
		assert.Len(t, byAgent, 1)

		all, err := s.ListSessions(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, s.DeleteSession(ctx, "s1"))
		_, err = s.GetSession(ctx, "s1")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("embedding assets", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveEmbeddingAsset(ctx, &models.EmbeddingAsset{ID: "e1", Name: "docs", ModelURI: "ollama://models/nomic-embed-text"}))

		got, err := s.GetEmbeddingAsset(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "docs", got.Name)

		list, err := s.ListEmbeddingAssets(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteEmbeddingAsset(ctx, "e1"))
		_, err = s.GetEmbeddingAsset(ctx, "e1")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}
