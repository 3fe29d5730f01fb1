package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// snapshotVersion is bumped whenever the on-disk layout changes shape.
const snapshotVersion = 1

type snapshot struct {
	Version    int                               `json:"version"`
	SavedAt    time.Time                         `json:"savedAt"`
	Providers  map[string]*models.ProviderRecord `json:"providers"`
	Agents     map[string]*models.AgentRecord    `json:"agents"`
	Sessions   map[string]*models.ChatSession    `json:"sessions"`
	Embeddings map[string]*models.EmbeddingAsset `json:"embeddings"`
}

// MemoryStore keeps every entity in maps guarded by one lock. With a data
// directory, writes are coalesced into periodic JSON snapshots.
type MemoryStore struct {
	mu         sync.RWMutex
	providers  map[string]*models.ProviderRecord
	agents     map[string]*models.AgentRecord
	sessions   map[string]*models.ChatSession
	embeddings map[string]*models.EmbeddingAsset

	path      string // "" disables snapshots
	flushWait time.Duration
	writeMu   sync.Mutex
	dirty     chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	flusher   sync.WaitGroup
}

// NewMemoryStore creates a store. A non-empty dataDir enables snapshots at
// dataDir/data.json, loaded on start and flushed on Close.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		providers:  map[string]*models.ProviderRecord{},
		agents:     map[string]*models.AgentRecord{},
		sessions:   map[string]*models.ChatSession{},
		embeddings: map[string]*models.EmbeddingAsset{},
		flushWait:  500 * time.Millisecond,
		dirty:      make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Data dir unavailable, snapshots off")
		} else {
			m.path = filepath.Join(dataDir, "data.json")
		}
	}

	if m.path != "" {
		if err := m.load(); err != nil {
			// Keep the unreadable file intact rather than overwrite it.
			log.Error().Err(err).Str("path", m.path).Msg("Snapshot not loaded, snapshots off")
			m.path = ""
		}
	}
	if m.path != "" {
		m.flusher.Add(1)
		go m.flushLoop()
	}

	log.Info().Str("snapshot", m.path).Msg("Memory store ready")
	return m
}

// requestSave marks the store dirty without blocking.
func (m *MemoryStore) requestSave() {
	if m.path == "" {
		return
	}
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// flushLoop writes at most one snapshot per flushWait window.
func (m *MemoryStore) flushLoop() {
	defer m.flusher.Done()
	timer := time.NewTimer(m.flushWait)
	timer.Stop()
	pending := false
	for {
		select {
		case <-m.stop:
			timer.Stop()
			return
		case <-m.dirty:
			if !pending {
				pending = true
				timer.Reset(m.flushWait)
			}
		case <-timer.C:
			pending = false
			if err := m.flush(); err != nil {
				log.Error().Err(err).Str("path", m.path).Msg("Snapshot write failed")
			}
		}
	}
}

// flush writes the snapshot to a temp file in the same directory and
// renames it over the old one.
func (m *MemoryStore) flush() error {
	m.mu.RLock()
	data, err := json.Marshal(snapshot{
		Version:    snapshotVersion,
		SavedAt:    time.Now().UTC(),
		Providers:  m.providers,
		Agents:     m.agents,
		Sessions:   m.sessions,
		Embeddings: m.embeddings,
	})
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	f, err := os.CreateTemp(filepath.Dir(m.path), ".data-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	serr := f.Sync()
	cerr := f.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	log.Debug().Int("bytes", len(data)).Msg("Snapshot written")
	return nil
}

// load restores a snapshot. A missing file is a fresh start.
func (m *MemoryStore) load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version > snapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, snapshotVersion)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = orEmpty(snap.Providers)
	m.agents = orEmpty(snap.Agents)
	m.sessions = orEmpty(snap.Sessions)
	m.embeddings = orEmpty(snap.Embeddings)

	log.Info().
		Time("saved_at", snap.SavedAt).
		Int("providers", len(m.providers)).
		Int("agents", len(m.agents)).
		Int("sessions", len(m.sessions)).
		Int("embeddings", len(m.embeddings)).
		Msg("Snapshot restored")
	return nil
}

func orEmpty[V any](in map[string]V) map[string]V {
	if in == nil {
		return map[string]V{}
	}
	return in
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the flusher and writes a final snapshot. Later calls do nothing.
func (m *MemoryStore) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		m.flusher.Wait()
		if m.path != "" {
			err = m.flush()
		}
	})
	return err
}

// ── Provider Store ──────────────────────────────────────────

func (m *MemoryStore) GetProviderRecord(_ context.Context, id string) (*models.ProviderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.providers[id]
	if !ok {
		return nil, &ErrNotFound{Entity: KindProvider, Key: id}
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) SaveProviderRecord(_ context.Context, rec *models.ProviderRecord) error {
	m.mu.Lock()
	m.providers[rec.ID] = rec.Clone()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListProviderRecords(_ context.Context) ([]models.ProviderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.ProviderRecord, 0, len(m.providers))
	for _, rec := range m.providers {
		result = append(result, *rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ── Agent Store ─────────────────────────────────────────────

func (m *MemoryStore) ListAgents(_ context.Context) ([]models.AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.AgentRecord, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: KindAgent, Key: id}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.AgentRecord) error {
	m.mu.Lock()
	cp := *agent
	m.agents[agent.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *models.AgentRecord) error {
	m.mu.Lock()
	if _, ok := m.agents[agent.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: KindAgent, Key: agent.ID}
	}
	cp := *agent
	m.agents[agent.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.agents[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: KindAgent, Key: id}
	}
	delete(m.agents, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: KindSession, Key: id}
	}
	return copySession(s), nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, sessionID, agentID string, turn models.ChatTurn) error {
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &models.ChatSession{ID: sessionID, AgentID: agentID, CreatedAt: now}
		m.sessions[sessionID] = s
	}
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = now
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, agentID string) ([]models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.ChatSession
	for _, s := range m.sessions {
		if agentID == "" || s.AgentID == agentID {
			result = append(result, *copySession(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: KindSession, Key: id}
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func copySession(s *models.ChatSession) *models.ChatSession {
	cp := *s
	cp.Turns = append([]models.ChatTurn(nil), s.Turns...)
	return &cp
}

// ── Embedding Asset Store ───────────────────────────────────

func (m *MemoryStore) ListEmbeddingAssets(_ context.Context) ([]models.EmbeddingAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.EmbeddingAsset, 0, len(m.embeddings))
	for _, e := range m.embeddings {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) GetEmbeddingAsset(_ context.Context, id string) (*models.EmbeddingAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.embeddings[id]
	if !ok {
		return nil, &ErrNotFound{Entity: KindEmbeddingAsset, Key: id}
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) SaveEmbeddingAsset(_ context.Context, asset *models.EmbeddingAsset) error {
	m.mu.Lock()
	cp := *asset
	m.embeddings[asset.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteEmbeddingAsset(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.embeddings[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: KindEmbeddingAsset, Key: id}
	}
	delete(m.embeddings, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}
