package models

import (
	"sort"
	"strings"
	"time"
)

// ── Features ─────────────────────────────────────────────────

// Feature is a capability a model is selected for.
type Feature string

const (
	FeatureAll            Feature = "all"
	FeatureConversational Feature = "conversational"
	FeatureVision         Feature = "vision"
	FeatureEmbedding      Feature = "embedding"
	FeatureTools          Feature = "tools"
)

// Valid reports whether f is a selectable feature. "all" is a filter, not a feature.
func (f Feature) Valid() bool {
	switch f {
	case FeatureConversational, FeatureVision, FeatureEmbedding, FeatureTools:
		return true
	}
	return false
}

// ── Provider Records ─────────────────────────────────────────

// PropertyValue is one configurable provider setting. ValueURI holds a
// locator (aif://values/plain/..., aif://values/secret/..., or an opaque
// reference) rather than the value itself.
type PropertyValue struct {
	Description string `json:"description"`
	Hint        string `json:"hint,omitempty"`
	IsSecret    bool   `json:"isSecret"`
	ValueURI    string `json:"valueUri,omitempty"`
}

// ModelInfo is one entry of a provider's model catalog.
type ModelInfo struct {
	URI           string    `json:"uri"`
	Name          string    `json:"name"`
	ProviderID    string    `json:"providerId"`
	Features      []Feature `json:"features"`
	IsUserDefined bool      `json:"isUserDefined"`
	IsDownloaded  *bool     `json:"isDownloaded,omitempty"` // local providers only
}

// HasFeature reports whether the model is selected for f. FeatureAll matches any model.
func (m *ModelInfo) HasFeature(f Feature) bool {
	if f == FeatureAll {
		return true
	}
	for _, x := range m.Features {
		if x == f {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m *ModelInfo) Clone() *ModelInfo {
	c := *m
	c.Features = append([]Feature(nil), m.Features...)
	if m.IsDownloaded != nil {
		d := *m.IsDownloaded
		c.IsDownloaded = &d
	}
	return &c
}

// ProviderRecord is the durable state of one provider.
type ProviderRecord struct {
	ID                       string                    `json:"id"`
	Name                     string                    `json:"name"`
	Description              string                    `json:"description"`
	Weight                   int                       `json:"weight"`
	Properties               map[string]*PropertyValue `json:"properties"`
	SupportUserDefinedModels bool                      `json:"supportUserDefinedModels"`
	IsLocal                  bool                      `json:"isLocal"`
	ModelMap                 map[string]*ModelInfo     `json:"modelMap"`
	ModelMapVersion          int                       `json:"modelMapVersion"`
	UpdatedAt                time.Time                 `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot reach internal state.
func (r *ProviderRecord) Clone() *ProviderRecord {
	c := *r
	c.Properties = make(map[string]*PropertyValue, len(r.Properties))
	for k, v := range r.Properties {
		p := *v
		c.Properties[k] = &p
	}
	c.ModelMap = make(map[string]*ModelInfo, len(r.ModelMap))
	for k, v := range r.ModelMap {
		c.ModelMap[k] = v.Clone()
	}
	return &c
}

// SortedModels returns the catalog ordered by name.
func (r *ProviderRecord) SortedModels() []*ModelInfo {
	out := make([]*ModelInfo, 0, len(r.ModelMap))
	for _, m := range r.ModelMap {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProviderStatus is recomputed from a health probe on every view.
type ProviderStatus string

const (
	ProviderAvailable   ProviderStatus = "available"
	ProviderUnavailable ProviderStatus = "unavailable"
)

// PropertyView is a property as shown outside the process. Secret values are masked.
type PropertyView struct {
	Description string `json:"description"`
	Hint        string `json:"hint,omitempty"`
	IsSecret    bool   `json:"isSecret"`
	Value       string `json:"value"`
}

// ProviderInfoView is the externally visible projection of a ProviderRecord.
type ProviderInfoView struct {
	ID                       string                   `json:"id"`
	Name                     string                   `json:"name"`
	Description              string                   `json:"description"`
	Weight                   int                      `json:"weight"`
	Properties               map[string]*PropertyView `json:"properties"`
	SupportUserDefinedModels bool                     `json:"supportUserDefinedModels"`
	IsLocal                  bool                     `json:"isLocal"`
	Models                   []*ModelInfo             `json:"models"`
	ModelMapVersion          int                      `json:"modelMapVersion"`
	Status                   ProviderStatus           `json:"status"`
}

// UpdateProviderRequest carries a partial update. Nil fields are left unchanged.
type UpdateProviderRequest struct {
	Name       *string           `json:"name,omitempty"`
	Weight     *int              `json:"weight,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// UpdateModelSelectionRequest toggles a model's feature.
type UpdateModelSelectionRequest struct {
	Model    string  `json:"model"` // model URI or bare name
	Feature  Feature `json:"feature"`
	Selected bool    `json:"selected"`
}

// ── Agents ───────────────────────────────────────────────────

type AgentRecord struct {
	ID               string    `json:"id"`
	AgentURI         string    `json:"agentUri"`
	Name             string    `json:"name"`
	BaseModelURI     string    `json:"basemodelUri"`
	SystemPrompt     string    `json:"systemPrompt"`
	RAGAssetIDs      []string  `json:"ragAssetIds,omitempty"`
	FunctionAssetIDs []string  `json:"functionAssetIds,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ── Embedding Assets ─────────────────────────────────────────

// EmbeddingAsset is a named vector collection built with one embedding model.
// The collection name in the vector store is the asset id.
type EmbeddingAsset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ModelURI    string    `json:"modelUri"`
	VectorStore string    `json:"vectorStore"`
	Documents   int       `json:"documents"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ── Chat History ─────────────────────────────────────────────

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// ContentItem is one typed piece of a chat turn.
type ContentItem struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	FileName string      `json:"fileName,omitempty"` // image reference
	MimeType string      `json:"mimeType,omitempty"`
}

// ChatTurn is one persisted message of a session.
type ChatTurn struct {
	Role              ChatRole      `json:"role"`
	Content           []ContentItem `json:"content"`
	ContentTextFormat string        `json:"contentTextFormat,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// Text joins the turn's text items.
func (t *ChatTurn) Text() string {
	var s string
	for _, c := range t.Content {
		if c.Type != ContentText {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += c.Text
	}
	return s
}

// ChatSession is an append-only sequence of turns scoped to one agent.
type ChatSession struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agentId"`
	Turns     []ChatTurn `json:"turns"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ChatFile is an attachment on a new chat turn.
type ChatFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// IsImage reports whether the attachment is an image.
func (f *ChatFile) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

// ── Model Messages ───────────────────────────────────────────

const (
	MessageSystem    = "system"
	MessageUser      = "user"
	MessageAssistant = "assistant"
)

// ContentPart represents one piece of a multi-part message (text or image).
type ContentPart struct {
	Type     string    `json:"type"` // "text", "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL describes an image for vision-capable models.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}

// ChatMessage is one message sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// When ContentParts is set, Content may be empty. Drivers use
	// ContentParts for multi-modal messages (text + images).
	ContentParts []ContentPart `json:"content_parts,omitempty"`
}

// ── Vector Index ─────────────────────────────────────────────

// VectorDoc is a document stored in the vector index.
type VectorDoc struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float64         `json:"vector"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SearchResult is a single vector search result.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// ── Ingestion ────────────────────────────────────────────────

// RawDocument is an uploaded text to be chunked into an embedding asset.
type RawDocument struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateEmbeddingRequest creates an embedding asset from documents.
type CreateEmbeddingRequest struct {
	Name         string        `json:"name"`
	ModelURI     string        `json:"modelUri"`
	Documents    []RawDocument `json:"documents"`
	ChunkSize    int           `json:"chunkSize,omitempty"`
	ChunkOverlap int           `json:"chunkOverlap,omitempty"`
}
