package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aifoundry/aifoundry/server/pkg/models"
)

func TestProviderRecordCloneIsDeep(t *testing.T) {
	downloaded := false
	rec := &models.ProviderRecord{
		ID:         "ollama",
		Properties: map[string]*models.PropertyValue{"OLLAMA_ENDPOINT": {ValueURI: "aif://values/plain/x"}},
		ModelMap: map[string]*models.ModelInfo{
			"llama3": {Name: "llama3", Features: []models.Feature{models.FeatureConversational}, IsDownloaded: &downloaded},
		},
	}

	c := rec.Clone()
	c.Properties["OLLAMA_ENDPOINT"].ValueURI = "changed"
	c.ModelMap["llama3"].Features[0] = models.FeatureTools
	*c.ModelMap["llama3"].IsDownloaded = true

	assert.Equal(t, "aif://values/plain/x", rec.Properties["OLLAMA_ENDPOINT"].ValueURI)
	assert.Equal(t, models.FeatureConversational, rec.ModelMap["llama3"].Features[0])
	assert.False(t, *rec.ModelMap["llama3"].IsDownloaded)
}

func TestHasFeature(t *testing.T) {
	m := &models.ModelInfo{Features: []models.Feature{models.FeatureEmbedding}}
	assert.True(t, m.HasFeature(models.FeatureAll))
	assert.True(t, m.HasFeature(models.FeatureEmbedding))
	assert.False(t, m.HasFeature(models.FeatureVision))
	assert.False(t, models.FeatureAll.Valid())
}

func TestChatTurnText(t *testing.T) {
	turn := models.ChatTurn{Content: []models.ContentItem{
		{Type: models.ContentText, Text: "a"},
		{Type: models.ContentImage, FileName: "x.png"},
		{Type: models.ContentText, Text: "b"},
	}}
	assert.Equal(t, "a\nb", turn.Text())
}
