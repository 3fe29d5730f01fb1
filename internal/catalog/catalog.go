// Package catalog holds the declared model catalog of every built-in provider.
//
// A declared catalog is what a provider ships with: its identity, the
// properties it needs, and the models it knows about at a given Version.
// Bumping Version is how a catalog change is rolled out over a persisted
// record; an unchanged Version never overwrites user edits.
package catalog

import (
	"sort"
	"time"

	"github.com/aifoundry/aifoundry/server/internal/property"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// Provider ids. Each id doubles as the URI scheme of that provider's models.
const (
	OpenAI      = "openai"
	AzureOpenAI = "azureopenai"
	Anthropic   = "anthropic"
	Ollama      = "ollama"
)

// PropertyKey names a recognized provider property.
type PropertyKey string

const (
	OpenAIAPIKey        PropertyKey = "OPENAI_API_KEY"
	OpenAIBaseURL       PropertyKey = "OPENAI_BASE_URL"
	AzureOpenAIAPIKey   PropertyKey = "AZURE_OPENAI_API_KEY"
	AzureOpenAIEndpoint PropertyKey = "AZURE_OPENAI_ENDPOINT"
	AnthropicAPIKey     PropertyKey = "ANTHROPIC_API_KEY"
	OllamaEndpoint      PropertyKey = "OLLAMA_ENDPOINT"
)

// PropertySpec declares one property a provider accepts.
type PropertySpec struct {
	Key         PropertyKey
	Description string
	Hint        string
	Secret      bool
	Required    bool
}

// ModelSpec declares one built-in model.
type ModelSpec struct {
	Name     string
	Features []models.Feature
}

// Declared is a provider's built-in catalog.
type Declared struct {
	ID                       string
	Name                     string
	Description              string
	Weight                   int
	Properties               []PropertySpec
	SupportUserDefinedModels bool
	IsLocal                  bool
	Models                   []ModelSpec
	Version                  int
}

// Property returns the spec for key.
func (d *Declared) Property(key PropertyKey) (PropertySpec, bool) {
	for _, p := range d.Properties {
		if p.Key == key {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// Record builds a fresh ProviderRecord from the declared catalog. seed holds
// initial raw property values (typically from configuration); missing keys
// stay unset. Local models start as not downloaded.
func (d *Declared) Record(seed map[PropertyKey]string) *models.ProviderRecord {
	rec := &models.ProviderRecord{
		ID:                       d.ID,
		Name:                     d.Name,
		Description:              d.Description,
		Weight:                   d.Weight,
		Properties:               make(map[string]*models.PropertyValue, len(d.Properties)),
		SupportUserDefinedModels: d.SupportUserDefinedModels,
		IsLocal:                  d.IsLocal,
		ModelMap:                 make(map[string]*models.ModelInfo, len(d.Models)),
		ModelMapVersion:          d.Version,
		UpdatedAt:                time.Now().UTC(),
	}
	for _, p := range d.Properties {
		rec.Properties[string(p.Key)] = &models.PropertyValue{
			Description: p.Description,
			Hint:        p.Hint,
			IsSecret:    p.Secret,
			ValueURI:    property.Encode(seed[p.Key], p.Secret),
		}
	}
	for _, m := range d.Models {
		rec.ModelMap[m.Name] = d.NewModel(m.Name, m.Features, false)
	}
	return rec
}

// NewModel builds a catalog entry for this provider.
func (d *Declared) NewModel(name string, features []models.Feature, userDefined bool) *models.ModelInfo {
	m := &models.ModelInfo{
		URI:           ModelURI(d.ID, name),
		Name:          name,
		ProviderID:    d.ID,
		Features:      append([]models.Feature{}, features...),
		IsUserDefined: userDefined,
	}
	if d.IsLocal {
		downloaded := false
		m.IsDownloaded = &downloaded
	}
	return m
}

// ModelURI returns "<provider>://models/<name>".
func ModelURI(providerID, name string) string {
	s, err := uri.Build(providerID, uri.CategoryModels, []string{name}, nil)
	if err != nil {
		return ""
	}
	return s
}

var (
	chat   = []models.Feature{models.FeatureConversational, models.FeatureTools}
	vision = []models.Feature{models.FeatureConversational, models.FeatureVision, models.FeatureTools}
	embed  = []models.Feature{models.FeatureEmbedding}
)

// Builtin returns the declared catalogs of all built-in providers, ordered by weight.
func Builtin() []*Declared {
	all := []*Declared{
		{
			ID:          OpenAI,
			Name:        "OpenAI",
			Description: "OpenAI hosted chat and embedding models.",
			Weight:      100,
			Properties: []PropertySpec{
				{Key: OpenAIAPIKey, Description: "API key", Hint: "sk-...", Secret: true, Required: true},
				{Key: OpenAIBaseURL, Description: "Base URL override for proxies and compatible APIs", Hint: "https://api.openai.com/v1"},
			},
			SupportUserDefinedModels: true,
			Models: []ModelSpec{
				{Name: "gpt-4o", Features: vision},
				{Name: "gpt-4o-mini", Features: vision},
				{Name: "text-embedding-3-small", Features: embed},
				{Name: "text-embedding-3-large", Features: embed},
			},
			Version: 2,
		},
		{
			ID:          AzureOpenAI,
			Name:        "Azure OpenAI",
			Description: "OpenAI models deployed on Azure. Model names are deployment names.",
			Weight:      90,
			Properties: []PropertySpec{
				{Key: AzureOpenAIAPIKey, Description: "API key", Secret: true, Required: true},
				{Key: AzureOpenAIEndpoint, Description: "Resource endpoint", Hint: "https://<resource>.openai.azure.com/", Required: true},
			},
			SupportUserDefinedModels: true,
			Models:                   nil, // deployments are user-defined
			Version:                  1,
		},
		{
			ID:          Anthropic,
			Name:        "Anthropic",
			Description: "Anthropic Claude chat models.",
			Weight:      80,
			Properties: []PropertySpec{
				{Key: AnthropicAPIKey, Description: "API key", Hint: "sk-ant-...", Secret: true, Required: true},
			},
			SupportUserDefinedModels: false,
			Models: []ModelSpec{
				{Name: "claude-sonnet-4-20250514", Features: vision},
				{Name: "claude-opus-4-20250514", Features: vision},
				{Name: "claude-3-5-haiku-20241022", Features: chat},
			},
			Version: 1,
		},
		{
			ID:          Ollama,
			Name:        "Ollama",
			Description: "Models served by a local Ollama runtime.",
			Weight:      70,
			Properties: []PropertySpec{
				{Key: OllamaEndpoint, Description: "Ollama endpoint", Hint: "http://localhost:11434"},
			},
			SupportUserDefinedModels: true,
			IsLocal:                  true,
			Models: []ModelSpec{
				{Name: "llama3.1", Features: chat},
				{Name: "llava", Features: []models.Feature{models.FeatureConversational, models.FeatureVision}},
				{Name: "nomic-embed-text", Features: embed},
				{Name: "mxbai-embed-large", Features: embed},
			},
			Version: 1,
		},
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Weight > all[j].Weight })
	return all
}

// Get returns the declared catalog for a built-in provider id.
func Get(id string) (*Declared, bool) {
	for _, d := range Builtin() {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}
