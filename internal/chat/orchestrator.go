// Package chat runs one chat turn end to end: resolve the agent and its
// model, assemble the prompt, invoke the model and stream the answer, then
// record both turns in the session history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/metrics"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/internal/telemetry"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
	"github.com/aifoundry/aifoundry/server/pkg/uri"
)

// ModelResolver returns the chat callable behind a model URI.
type ModelResolver interface {
	ChatModel(ctx context.Context, modelURI string) (contracts.ChatModel, error)
}

// PromptBuilder assembles the messages for a turn.
type PromptBuilder interface {
	Build(ctx context.Context, agentID string, session *models.ChatSession, text string, files []models.ChatFile, outputFormat string) ([]models.ChatMessage, error)
}

// Request is one chat turn.
type Request struct {
	SessionID    string
	AgentURI     string
	OutputFormat string
	Text         string
	Files        []models.ChatFile
}

// Orchestrator runs chat turns. Turns of the same session are serialized;
// different sessions run concurrently.
type Orchestrator struct {
	agents   store.AgentStore
	sessions store.SessionStore
	models   ModelResolver
	prompts  PromptBuilder

	timeout        time.Duration
	historyRetries uint64
	tracer         trace.Tracer

	locks *haxmap.Map[string, *sync.Mutex]
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds each model invocation.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithHistoryRetries sets how often a failed history write is retried.
func WithHistoryRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.historyRetries = uint64(n)
		}
	}
}

func NewOrchestrator(agents store.AgentStore, sessions store.SessionStore, resolver ModelResolver, prompts PromptBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:         agents,
		sessions:       sessions,
		models:         resolver,
		prompts:        prompts,
		timeout:        120 * time.Second,
		historyRetries: 3,
		tracer:         telemetry.Tracer(),
		locks:          haxmap.New[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat starts a turn. Errors before the answer is produced surface from the
// stream's first Next; the answer is a single chunk.
func (o *Orchestrator) Chat(ctx context.Context, req Request) *Stream {
	return NewStream(ctx, func(ctx context.Context, e *Emitter) {
		o.run(ctx, req, e)
	})
}

// AgentID extracts the agent id from an agents-category URI.
func AgentID(agentURI string) (string, error) {
	u, ok := uri.Parse(agentURI)
	if !ok || u.Category != uri.CategoryAgents {
		return "", apperr.InvalidRequest("invalid agent URI %q", agentURI)
	}
	return u.Last(), nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, e *Emitter) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chat.session_id", req.SessionID),
		attribute.String("chat.agent_uri", req.AgentURI),
	))
	defer span.End()

	// Every failure here happens before the answer is emitted.
	fail := func(provider string, err error) {
		metrics.RecordChat(provider, metrics.OutcomeRejected, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("session", req.SessionID).Str("agent_uri", req.AgentURI).Msg("Chat turn failed")
		e.Fail(err)
	}

	if req.SessionID == "" {
		fail("", apperr.InvalidRequest("session id is required"))
		return
	}
	agentID, err := AgentID(req.AgentURI)
	if err != nil {
		fail("", err)
		return
	}

	mu := o.lock(req.SessionID)
	defer mu.Unlock()

	agent, err := o.agents.GetAgent(ctx, agentID)
	if err != nil {
		fail("", err)
		return
	}
	provider := providerOf(agent.BaseModelURI)
	span.SetAttributes(attribute.String("chat.model_uri", agent.BaseModelURI))

	session, err := o.sessions.GetSession(ctx, req.SessionID)
	var nf *store.ErrNotFound
	switch {
	case errors.As(err, &nf):
		session = nil
	case err != nil:
		fail(provider, fmt.Errorf("load session: %w", err))
		return
	case session.AgentID != agentID:
		// A session belongs to the agent that opened it.
		fail(provider, apperr.InvalidRequest("session %s belongs to another agent", req.SessionID))
		return
	}

	model, err := o.models.ChatModel(ctx, agent.BaseModelURI)
	if err != nil {
		fail(provider, err)
		return
	}
	msgs, err := o.prompts.Build(ctx, agentID, session, req.Text, req.Files, req.OutputFormat)
	if err != nil {
		fail(provider, err)
		return
	}

	answer, err := o.invoke(ctx, model, msgs)
	if err != nil {
		fail(provider, fmt.Errorf("%s: %w", model.Name(), err))
		return
	}

	e.Emit(answer)
	e.Complete()
	metrics.RecordChat(provider, metrics.OutcomeOK, time.Since(start))
	log.Info().
		Str("session", req.SessionID).
		Str("agent", agentID).
		Str("model", agent.BaseModelURI).
		Int("messages", len(msgs)).
		Dur("elapsed", time.Since(start)).
		Msg("Chat turn answered")

	// The consumer no longer waits on us; a client disconnect must not
	// drop the history.
	o.recordTurns(context.WithoutCancel(ctx), req, agentID, answer)
}

// lock acquires the per-session mutex.
func (o *Orchestrator) lock(sessionID string) *sync.Mutex {
	mu, _ := o.locks.GetOrCompute(sessionID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu
}

// DeleteSession waits for an in-flight turn of the session, deletes its
// history and drops its lock.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	mu := o.lock(id)
	defer mu.Unlock()
	err := o.sessions.DeleteSession(ctx, id)
	o.locks.Del(id)
	return err
}

func (o *Orchestrator) invoke(ctx context.Context, model contracts.ChatModel, msgs []models.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "chat.invoke", trace.WithAttributes(attribute.String("chat.model", model.Name())))
	defer span.End()

	answer, err := model.Invoke(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return answer, err
}

// recordTurns appends the user and assistant turns as two independent
// writes. Failures are retried, then logged and counted.
func (o *Orchestrator) recordTurns(ctx context.Context, req Request, agentID, answer string) {
	now := time.Now().UTC()
	user := models.ChatTurn{Role: models.RoleUser, Content: userContent(req.Text, req.Files), CreatedAt: now}
	assistant := models.ChatTurn{
		Role:              models.RoleAssistant,
		Content:           []models.ContentItem{{Type: models.ContentText, Text: answer}},
		ContentTextFormat: req.OutputFormat,
		CreatedAt:         now,
	}

	for _, turn := range []models.ChatTurn{user, assistant} {
		op := func() error { return o.sessions.AppendTurn(ctx, req.SessionID, agentID, turn) }
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxElapsedTime(5*time.Second),
		), o.historyRetries), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			metrics.RecordHistoryWriteFailure()
			log.Error().Err(err).Str("session", req.SessionID).Str("role", string(turn.Role)).Msg("Failed to record chat turn")
		}
	}
}

// userContent records the text and attachment metadata of a user turn.
func userContent(text string, files []models.ChatFile) []models.ContentItem {
	items := []models.ContentItem{{Type: models.ContentText, Text: text}}
	for _, f := range files {
		if f.IsImage() {
			items = append(items, models.ContentItem{Type: models.ContentImage, FileName: f.Name, MimeType: f.ContentType})
		}
	}
	return items
}

func providerOf(modelURI string) string {
	if u, ok := uri.Parse(modelURI); ok {
		return u.Scheme
	}
	return "unknown"
}
