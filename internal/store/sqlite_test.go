package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "aif.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.SaveProviderRecord(ctx, &models.ProviderRecord{ID: "anthropic", Name: "Anthropic"}))
	require.NoError(t, s.SaveProviderRecord(ctx, &models.ProviderRecord{ID: "anthropic", Name: "Claude"}))

	rec, err := s.GetProviderRecord(ctx, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "Claude", rec.Name)
}
