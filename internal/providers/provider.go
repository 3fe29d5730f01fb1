// Package providers implements the model backends. Every backend shares one
// Base that owns the provider record and its lifecycle (versioned catalog
// merge, property updates, model selection, masking); backends only supply
// a health probe, a runtime refresh and the callables for their models.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/catalog"
	"github.com/aifoundry/aifoundry/server/internal/metrics"
	"github.com/aifoundry/aifoundry/server/internal/property"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// Provider is the capability set every backend exposes.
type Provider interface {
	ID() string
	Name() string
	IsLocal() bool

	// CanHandle reports whether raw is a URI whose scheme is this provider's id.
	CanHandle(raw string) bool

	// Init loads or builds the provider record. Idempotent.
	Init(ctx context.Context) error

	IsHealthy(ctx context.Context) bool
	ListLanguageModels(ctx context.Context, feature models.Feature) []*models.ModelInfo
	GetBaseLanguageModel(ctx context.Context, modelURI string) (contracts.ChatModel, error)
	GetBaseEmbeddingsModel(ctx context.Context, modelURI string) (contracts.EmbeddingDriver, error)

	GetProviderInfo(ctx context.Context, force bool) (*models.ProviderInfoView, error)
	UpdateProviderInfo(ctx context.Context, req *models.UpdateProviderRequest) (*models.ProviderInfoView, error)
	UpdateModelSelection(ctx context.Context, modelURIOrName string, feature models.Feature, selected bool) (*models.ProviderInfoView, error)

	DownloadModel(ctx context.Context, id string, out io.Writer) error
	DeleteModel(ctx context.Context, id string, out io.Writer) error
}

// hooks is what a backend plugs into Base. Each hook receives a private
// copy of the record; refreshRuntimeInfo may mutate it and reports whether
// it did.
type hooks interface {
	healthy(ctx context.Context, rec *models.ProviderRecord) bool
	refreshRuntimeInfo(ctx context.Context, rec *models.ProviderRecord) (bool, error)
	chatModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.ChatModel, error)
	embeddingModel(rec *models.ProviderRecord, model *uri.ResourceURI) (contracts.EmbeddingDriver, error)
}

// Base implements the provider lifecycle shared by all backends.
type Base struct {
	declared *catalog.Declared
	seed     map[catalog.PropertyKey]string
	store    store.ProviderStore
	hooks    hooks

	mu  sync.Mutex // guards rec; held across every mutation and its persist
	rec *models.ProviderRecord
}

func newBase(declared *catalog.Declared, st store.ProviderStore, seed map[catalog.PropertyKey]string, h hooks) *Base {
	return &Base{declared: declared, seed: seed, store: st, hooks: h}
}

func (b *Base) ID() string    { return b.declared.ID }
func (b *Base) Name() string  { return b.declared.Name }
func (b *Base) IsLocal() bool { return b.declared.IsLocal }

func (b *Base) CanHandle(raw string) bool {
	_, ok := uri.ParseWithScheme(b.declared.ID, raw)
	return ok
}

// ── Lifecycle ───────────────────────────────────────────────

func (b *Base) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initLocked(ctx)
}

// initLocked applies the versioned merge: a persisted record is kept unless
// the declared catalog version is strictly greater.
func (b *Base) initLocked(ctx context.Context) error {
	if b.rec != nil {
		return nil
	}

	persisted, err := b.store.GetProviderRecord(ctx, b.declared.ID)
	var nf *store.ErrNotFound
	var rec *models.ProviderRecord
	fresh := false
	switch {
	case errors.As(err, &nf):
		rec, fresh = b.declared.Record(b.seed), true
	case err != nil:
		return fmt.Errorf("%s: load record: %w", b.declared.ID, err)
	case b.declared.Version > persisted.ModelMapVersion:
		log.Info().
			Str("provider", b.declared.ID).
			Int("persisted_version", persisted.ModelMapVersion).
			Int("declared_version", b.declared.Version).
			Msg("Provider catalog upgraded, rebuilding record")
		rec, fresh = b.declared.Record(b.seed), true
	default:
		rec = persisted
	}

	changed, err := b.hooks.refreshRuntimeInfo(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Str("provider", b.declared.ID).Msg("Runtime info refresh failed")
	}

	if fresh || changed {
		rec.UpdatedAt = time.Now().UTC()
		if err := b.store.SaveProviderRecord(ctx, rec); err != nil {
			return fmt.Errorf("%s: save record: %w", b.declared.ID, err)
		}
	}
	b.rec = rec

	log.Info().
		Str("provider", b.declared.ID).
		Int("models", len(rec.ModelMap)).
		Int("version", rec.ModelMapVersion).
		Bool("fresh", fresh).
		Msg("Provider initialized")
	return nil
}

// snapshot returns a private copy of the record, initializing on first use.
func (b *Base) snapshot(ctx context.Context) (*models.ProviderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return nil, err
	}
	return b.rec.Clone(), nil
}

// mutate runs fn on a copy of the record and, if fn reports a change,
// persists the copy and swaps it in. A failing fn or save leaves the
// current record untouched.
func (b *Base) mutate(ctx context.Context, fn func(rec *models.ProviderRecord) (bool, error)) (*models.ProviderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return nil, err
	}

	next := b.rec.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if changed {
		next.UpdatedAt = time.Now().UTC()
		if err := b.store.SaveProviderRecord(ctx, next); err != nil {
			return nil, fmt.Errorf("%s: save record: %w", b.declared.ID, err)
		}
		b.rec = next
	}
	return b.rec.Clone(), nil
}

// ── Health and listing ──────────────────────────────────────

func (b *Base) IsHealthy(ctx context.Context) bool {
	rec, err := b.snapshot(ctx)
	if err != nil {
		return false
	}
	ok := b.hooks.healthy(ctx, rec)
	metrics.SetProviderHealth(b.declared.ID, ok)
	return ok
}

// ListLanguageModels returns the models selected for feature, or nothing
// when the provider is unhealthy.
func (b *Base) ListLanguageModels(ctx context.Context, feature models.Feature) []*models.ModelInfo {
	if !b.IsHealthy(ctx) {
		return []*models.ModelInfo{}
	}
	rec, err := b.snapshot(ctx)
	if err != nil {
		return []*models.ModelInfo{}
	}
	out := []*models.ModelInfo{}
	for _, m := range rec.SortedModels() {
		if m.HasFeature(feature) {
			out = append(out, m)
		}
	}
	return out
}

// ── Callables ───────────────────────────────────────────────

func (b *Base) parseModelURI(raw string) (*uri.ResourceURI, error) {
	u, ok := uri.ParseWithScheme(b.declared.ID, raw)
	if !ok || u.Category != uri.CategoryModels {
		return nil, apperr.InvalidRequest("%s: not a model URI of this provider: %q", b.declared.ID, raw)
	}
	return u, nil
}

func (b *Base) GetBaseLanguageModel(ctx context.Context, modelURI string) (contracts.ChatModel, error) {
	u, err := b.parseModelURI(modelURI)
	if err != nil {
		return nil, err
	}
	rec, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return b.hooks.chatModel(rec, u)
}

func (b *Base) GetBaseEmbeddingsModel(ctx context.Context, modelURI string) (contracts.EmbeddingDriver, error) {
	u, err := b.parseModelURI(modelURI)
	if err != nil {
		return nil, err
	}
	rec, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return b.hooks.embeddingModel(rec, u)
}

// ── Provider info ───────────────────────────────────────────

// GetProviderInfo returns a masked view. With force, the runtime info is
// refreshed and the record persisted first.
func (b *Base) GetProviderInfo(ctx context.Context, force bool) (*models.ProviderInfoView, error) {
	var rec *models.ProviderRecord
	var err error
	if force {
		rec, err = b.mutate(ctx, func(rec *models.ProviderRecord) (bool, error) {
			if _, err := b.hooks.refreshRuntimeInfo(ctx, rec); err != nil {
				log.Warn().Err(err).Str("provider", b.declared.ID).Msg("Runtime info refresh failed")
			}
			return true, nil
		})
	} else {
		rec, err = b.snapshot(ctx)
	}
	if err != nil {
		return nil, err
	}
	return b.view(ctx, rec), nil
}

// UpdateProviderInfo applies a partial update. Unknown property keys are rejected.
func (b *Base) UpdateProviderInfo(ctx context.Context, req *models.UpdateProviderRequest) (*models.ProviderInfoView, error) {
	rec, err := b.mutate(ctx, func(rec *models.ProviderRecord) (bool, error) {
		if req.Name != nil {
			rec.Name = *req.Name
		}
		if req.Weight != nil {
			rec.Weight = *req.Weight
		}
		for key, value := range req.Properties {
			prop, ok := rec.Properties[key]
			if !ok {
				return false, apperr.InvalidRequest("%s: unknown property %q", b.declared.ID, key)
			}
			prop.ValueURI = property.EncodeInput(value, prop.IsSecret)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", b.declared.ID).Int("properties", len(req.Properties)).Msg("Provider info updated")
	return b.view(ctx, rec), nil
}

func (b *Base) view(ctx context.Context, rec *models.ProviderRecord) *models.ProviderInfoView {
	v := &models.ProviderInfoView{
		ID:                       rec.ID,
		Name:                     rec.Name,
		Description:              rec.Description,
		Weight:                   rec.Weight,
		Properties:               make(map[string]*models.PropertyView, len(rec.Properties)),
		SupportUserDefinedModels: rec.SupportUserDefinedModels,
		IsLocal:                  rec.IsLocal,
		Models:                   rec.SortedModels(),
		ModelMapVersion:          rec.ModelMapVersion,
		Status:                   models.ProviderUnavailable,
	}
	for k, p := range rec.Properties {
		v.Properties[k] = property.View(p)
	}
	if b.hooks.healthy(ctx, rec) {
		v.Status = models.ProviderAvailable
	}
	return v
}

// ── Model selection ─────────────────────────────────────────

// modelName accepts a model URI of this provider or a bare model name.
func (b *Base) modelName(modelURIOrName string) (string, error) {
	if modelURIOrName == "" {
		return "", apperr.InvalidRequest("%s: model is required", b.declared.ID)
	}
	if u, ok := uri.Parse(modelURIOrName); ok {
		if u.Scheme != b.declared.ID || u.Category != uri.CategoryModels {
			return "", apperr.InvalidRequest("%s: not a model URI of this provider: %q", b.declared.ID, modelURIOrName)
		}
		return u.Last(), nil
	}
	return modelURIOrName, nil
}

// UpdateModelSelection moves a (model, feature) pair through the selection
// states absent, present without features and present with features.
func (b *Base) UpdateModelSelection(ctx context.Context, modelURIOrName string, feature models.Feature, selected bool) (*models.ProviderInfoView, error) {
	if !feature.Valid() {
		return nil, apperr.InvalidRequest("%s: invalid feature %q", b.declared.ID, feature)
	}
	name, err := b.modelName(modelURIOrName)
	if err != nil {
		return nil, err
	}

	rec, err := b.mutate(ctx, func(rec *models.ProviderRecord) (bool, error) {
		if selected {
			return b.selectModel(rec, name, feature)
		}
		return b.deselectModel(rec, name, feature), nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ModelSelection(b.declared.ID, selected)
	log.Info().
		Str("provider", b.declared.ID).
		Str("model", name).
		Str("feature", string(feature)).
		Bool("selected", selected).
		Msg("Model selection updated")
	return b.view(ctx, rec), nil
}

func (b *Base) selectModel(rec *models.ProviderRecord, name string, feature models.Feature) (bool, error) {
	m, ok := rec.ModelMap[name]
	if !ok {
		if !rec.SupportUserDefinedModels {
			return false, apperr.InvalidOperation("%s: model %q is not in the catalog and user-defined models are not supported", rec.ID, name)
		}
		rec.ModelMap[name] = b.declared.NewModel(name, []models.Feature{feature}, true)
		return true, nil
	}

	changed := false
	if !m.HasFeature(feature) {
		m.Features = append(m.Features, feature)
		changed = true
	}
	if rec.IsLocal && (m.IsDownloaded == nil || !*m.IsDownloaded) {
		downloaded := true
		m.IsDownloaded = &downloaded
		changed = true
	}
	return changed, nil
}

func (b *Base) deselectModel(rec *models.ProviderRecord, name string, feature models.Feature) bool {
	m, ok := rec.ModelMap[name]
	if !ok {
		return false
	}
	kept := m.Features[:0]
	for _, f := range m.Features {
		if f != feature {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(m.Features) {
		return false
	}
	m.Features = kept
	if len(m.Features) == 0 && rec.SupportUserDefinedModels {
		delete(rec.ModelMap, name)
	}
	return true
}

// ── Local runtime operations ────────────────────────────────

func (b *Base) DownloadModel(_ context.Context, id string, out io.Writer) error {
	fmt.Fprintf(out, "%s: download not supported for %s\n", b.declared.Name, id)
	return nil
}

func (b *Base) DeleteModel(_ context.Context, id string, out io.Writer) error {
	fmt.Fprintf(out, "%s: delete not supported for %s\n", b.declared.Name, id)
	return nil
}

// ── Credential helpers ──────────────────────────────────────

// requireProps resolves keys, failing with InvalidConfiguration on the first
// one that has no usable value.
func requireProps(rec *models.ProviderRecord, keys ...catalog.PropertyKey) (map[catalog.PropertyKey]string, error) {
	out := make(map[catalog.PropertyKey]string, len(keys))
	for _, k := range keys {
		v, ok := property.Resolve(rec.Properties[string(k)])
		if !ok || v == "" {
			return nil, apperr.InvalidConfiguration("%s: property %s is not configured", rec.ID, k)
		}
		out[k] = v
	}
	return out, nil
}

// credentialsPresent is the health check of cloud backends: every required
// property resolves to a non-empty value.
func credentialsPresent(declared *catalog.Declared, rec *models.ProviderRecord) bool {
	for _, p := range declared.Properties {
		if !p.Required {
			continue
		}
		if v, ok := property.Resolve(rec.Properties[string(p.Key)]); !ok || v == "" {
			return false
		}
	}
	return true
}

func optionalProp(rec *models.ProviderRecord, key catalog.PropertyKey, def string) string {
	return property.ResolveOr(rec.Properties[string(key)], def)
}
