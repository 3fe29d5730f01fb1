package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/property"
)

func TestBuiltinIDsAreUniqueLowercase(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range catalog.Builtin() {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
		assert.Regexp(t, `^[a-z]+$`, d.ID)
		assert.Positive(t, d.Version)
	}
	assert.Len(t, seen, 4)
}

func TestRecordSeedsProperties(t *testing.T) {
	d, ok := catalog.Get(catalog.OpenAI)
	require.True(t, ok)

	rec := d.Record(map[catalog.PropertyKey]string{catalog.OpenAIAPIKey: "sk-test"})
	assert.Equal(t, d.Version, rec.ModelMapVersion)

	key, ok := property.Resolve(rec.Properties[string(catalog.OpenAIAPIKey)])
	require.True(t, ok)
	assert.Equal(t, "sk-test", key)
	assert.True(t, rec.Properties[string(catalog.OpenAIAPIKey)].IsSecret)

	_, ok = property.Resolve(rec.Properties[string(catalog.OpenAIBaseURL)])
	assert.False(t, ok, "unseeded properties stay unset")

	m := rec.ModelMap["gpt-4o"]
	require.NotNil(t, m)
	assert.Equal(t, "openai://models/gpt-4o", m.URI)
	assert.Nil(t, m.IsDownloaded)
}

func TestLocalModelsStartNotDownloaded(t *testing.T) {
	d, ok := catalog.Get(catalog.Ollama)
	require.True(t, ok)
	rec := d.Record(nil)
	for _, m := range rec.ModelMap {
		require.NotNil(t, m.IsDownloaded)
		assert.False(t, *m.IsDownloaded)
	}
}

func TestGetUnknown(t *testing.T) {
	_, ok := catalog.Get("bedrock")
	assert.False(t, ok)
}
