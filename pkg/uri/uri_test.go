package uri_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

func TestBuildAndParseRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		scheme   string
		category uri.Category
		parts    []string
		params   map[string]string
	}{
		{"single part", "ollama", uri.CategoryModels, []string{"mxbai-embed-large"}, nil},
		{"with version", "azureopenai", uri.CategoryModels, []string{"gpt-4o-mini"}, map[string]string{"version": "2024-07-01-preview"}},
		{"secret value", uri.ValueScheme, uri.CategoryValues, []string{"secret", "sk-abc/def?x=1"}, nil},
		{"agent", uri.ValueScheme, uri.CategoryAgents, []string{"0b8c"}, map[string]string{"a": "", "b": "x y&z"}},
		{"model tag", "ollama", uri.CategoryModels, []string{"llama3.1:8b"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := uri.Build(tc.scheme, tc.category, tc.parts, tc.params)
			require.NoError(t, err)

			got, ok := uri.Parse(raw)
			require.True(t, ok, "parse %q", raw)
			assert.Equal(t, tc.scheme, got.Scheme)
			assert.Equal(t, tc.category, got.Category)
			assert.Equal(t, tc.parts, got.Parts)
			if tc.params == nil {
				assert.Empty(t, got.Params)
			} else {
				assert.Equal(t, tc.params, got.Params)
			}
			assert.Equal(t, raw, got.String())
		})
	}
}

func TestBuildRejectsEmptyParts(t *testing.T) {
	_, err := uri.Build("ollama", uri.CategoryModels, nil, nil)
	assert.ErrorIs(t, err, uri.ErrInvalidArgument)

	_, err = uri.Build("ollama", uri.CategoryModels, []string{"a", ""}, nil)
	assert.ErrorIs(t, err, uri.ErrInvalidArgument)

	_, err = uri.Build("ollama", uri.Category("nope"), []string{"a"}, nil)
	assert.ErrorIs(t, err, uri.ErrInvalidArgument)
}

func TestParseRejectsUnrecognized(t *testing.T) {
	for _, raw := range []string{
		"",
		"sk-plain-api-key",
		"ollama://models",
		"ollama://models/",
		"ollama://models//x",
		"ollama://widgets/x",
		"ollama://models/x?",
		"ollama://models/x?novalue",
		"ollama://models/x?a=1&a=2",
		"1abc://models/x",
		"https://example.com/path",
	} {
		_, ok := uri.Parse(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestParseWithScheme(t *testing.T) {
	u, ok := uri.ParseWithScheme("ollama", "ollama://models/llama3")
	require.True(t, ok)
	assert.Equal(t, "llama3", u.Last())

	_, ok = uri.ParseWithScheme("openai", "ollama://models/llama3")
	assert.False(t, ok)

	_, ok = uri.ParseWithScheme("", "ollama://models/llama3")
	assert.False(t, ok)
}

func TestParam(t *testing.T) {
	u, ok := uri.Parse("azureopenai://models/gpt-4o?version=2024-02-01")
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", u.Param("version", "x"))
	assert.Equal(t, "x", u.Param("missing", "x"))
}
