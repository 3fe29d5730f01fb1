package property_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aifoundry/aifoundry/server/internal/property"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name  string
		prop  *models.PropertyValue
		want  string
		found bool
	}{
		{"nil", nil, "", false},
		{"plain", &models.PropertyValue{ValueURI: "aif://values/plain/http%3A%2F%2Flocalhost:11434"}, "http://localhost:11434", true},
		{"secret", &models.PropertyValue{ValueURI: "aif://values/secret/sk-123"}, "sk-123", true},
		{"raw string", &models.PropertyValue{ValueURI: "sk-123"}, "", false},
		{"models category", &models.PropertyValue{ValueURI: "aif://models/secret/sk-123"}, "", false},
		{"three parts", &models.PropertyValue{ValueURI: "aif://values/secret/a/b"}, "", false},
		{"one part", &models.PropertyValue{ValueURI: "aif://values/secret"}, "", false},
		{"unknown kind", &models.PropertyValue{ValueURI: "aif://values/keyvault/name"}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := property.Resolve(tc.prop)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	p := &models.PropertyValue{ValueURI: property.Encode("https://x.openai.azure.com/", false)}
	got, ok := property.Resolve(p)
	assert.True(t, ok)
	assert.Equal(t, "https://x.openai.azure.com/", got)

	assert.Equal(t, "aif://values/secret/abc", property.Encode("abc", true))
	assert.Empty(t, property.Encode("", true))
}

func TestEncodeInputKeepsURIs(t *testing.T) {
	ref := "aif://values/keyvault/openai-key"
	assert.Equal(t, ref, property.EncodeInput(ref, true))
	assert.Equal(t, "aif://values/secret/sk-1", property.EncodeInput("sk-1", true))
}

func TestViewMasksSecrets(t *testing.T) {
	v := property.View(&models.PropertyValue{IsSecret: true, ValueURI: "aif://values/secret/sk-1234"})
	assert.Equal(t, "*******", v.Value)

	v = property.View(&models.PropertyValue{IsSecret: false, ValueURI: "aif://values/plain/abc"})
	assert.Equal(t, "abc", v.Value)

	assert.Equal(t, "***", property.Mask("日本語"))
}
