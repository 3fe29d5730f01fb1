package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env
	t.Setenv("AIF_DATA_DIR", "/tmp/aif")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "/tmp/aif/aifoundry.db", cfg.Store.SQLitePath)
	assert.Equal(t, "embedded", cfg.VectorStore.Kind)
	assert.Equal(t, 120*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, "http://localhost:11434", cfg.Providers.OllamaEndpoint)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "aif.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
store:
  kind: sqlite
chat:
  timeout: 30s
providers:
  openai_api_key: sk-from-file
`), 0o644))

	t.Setenv("AIF_CONFIG_FILE", path)
	t.Setenv("AIF_PORT", "7070")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port, "env wins over file")
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, 30*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, "sk-from-file", cfg.Providers.OpenAIAPIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANTHROPIC_API_KEY=sk-ant-dotenv\n"), 0o644))
	prev, had := os.LookupEnv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	t.Cleanup(func() {
		if had {
			os.Setenv("ANTHROPIC_API_KEY", prev)
		} else {
			os.Unsetenv("ANTHROPIC_API_KEY")
		}
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-dotenv", cfg.Providers.AnthropicAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("AIF_STORE", "postgres")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("AIF_STORE", "memory")
	t.Setenv("AIF_VECTOR_STORE", "pgvector")
	_, err = config.Load()
	assert.Error(t, err)
}

func TestLoadAPIKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AIF_API_KEYS", " a, b ,,c")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.HTTP.APIKeys)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
}
