package chat_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
	"github.com/aifoundry/aifoundry/server/internal/chat"
	"github.com/aifoundry/aifoundry/server/internal/prompt"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// echoModel answers with a fixed reply and records what it was sent.
type echoModel struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  [][]models.ChatMessage
}

func (m *echoModel) Name() string { return "echo" }
func (m *echoModel) Invoke(_ context.Context, msgs []models.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, msgs)
	return m.reply, m.err
}

type fakeResolver struct {
	model contracts.ChatModel
	err   error
}

func (r fakeResolver) ChatModel(context.Context, string) (contracts.ChatModel, error) {
	return r.model, r.err
}

// brokenHistory fails every append.
type brokenHistory struct {
	store.SessionStore
	attempts int
	mu       sync.Mutex
}

func (b *brokenHistory) AppendTurn(context.Context, string, string, models.ChatTurn) error {
	b.mu.Lock()
	b.attempts++
	b.mu.Unlock()
	return errors.New("disk full")
}

const agentURI = "aif://agents/agent-1"

func newStore(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateAgent(context.Background(), &models.AgentRecord{
		ID:           "agent-1",
		AgentURI:     agentURI,
		BaseModelURI: "ollama://models/llama3.1",
		SystemPrompt: "You are terse.",
	}))
	return st
}

func newOrchestrator(st store.Store, sessions store.SessionStore, res chat.ModelResolver) *chat.Orchestrator {
	assembler := prompt.NewAssembler(st, st, nil, nil)
	return chat.NewOrchestrator(st, sessions, res, assembler, chat.WithTimeout(time.Second), chat.WithHistoryRetries(1))
}

func TestChat_AnswersAndRecordsHistory(t *testing.T) {
	st := newStore(t)
	model := &echoModel{reply: "42"}
	o := newOrchestrator(st, st, fakeResolver{model: model})

	s := o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: agentURI, Text: "meaning of life?", OutputFormat: "text"})
	chunks, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, chunks)

	require.Eventually(t, func() bool {
		sess, err := st.GetSession(context.Background(), "s1")
		return err == nil && len(sess.Turns) == 2
	}, time.Second, 5*time.Millisecond)

	sess, err := st.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", sess.AgentID)
	assert.Equal(t, models.RoleUser, sess.Turns[0].Role)
	assert.Equal(t, "meaning of life?", sess.Turns[0].Text())
	assert.Equal(t, models.RoleAssistant, sess.Turns[1].Role)
	assert.Equal(t, "42", sess.Turns[1].Text())
	assert.Equal(t, "text", sess.Turns[1].ContentTextFormat)
}

func TestChat_ReplaysHistory(t *testing.T) {
	st := newStore(t)
	model := &echoModel{reply: "ok"}
	o := newOrchestrator(st, st, fakeResolver{model: model})

	for _, text := range []string{"first", "second"} {
		_, err := collect(t, o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: agentURI, Text: text}))
		require.NoError(t, err)
	}

	// The per-session lock is held until history is written, so the second
	// turn always sees the first.
	require.Len(t, model.seen, 2)
	assert.Equal(t, []models.ChatMessage{
		{Role: models.MessageSystem, Content: "You are terse."},
		{Role: models.MessageUser, Content: "first"},
		{Role: models.MessageAssistant, Content: "ok"},
		{Role: models.MessageUser, Content: "second"},
	}, model.seen[1])
}

func TestChat_ErrorsBeforeEmission(t *testing.T) {
	st := newStore(t)
	ok := fakeResolver{model: &echoModel{reply: "x"}}

	tests := []struct {
		name     string
		req      chat.Request
		resolver chat.ModelResolver
		kind     apperr.Kind
	}{
		{"missing session", chat.Request{AgentURI: agentURI}, ok, apperr.KindInvalidRequest},
		{"bad agent uri", chat.Request{SessionID: "s", AgentURI: "agent-1"}, ok, apperr.KindInvalidRequest},
		{"wrong category", chat.Request{SessionID: "s", AgentURI: "aif://models/agent-1"}, ok, apperr.KindInvalidRequest},
		{"unknown agent", chat.Request{SessionID: "s", AgentURI: "aif://agents/nobody"}, ok, apperr.KindNotFound},
		{"no provider", chat.Request{SessionID: "s", AgentURI: agentURI}, fakeResolver{err: apperr.NotFound("no provider")}, apperr.KindNotFound},
		{"missing credentials", chat.Request{SessionID: "s", AgentURI: agentURI}, fakeResolver{err: apperr.InvalidConfiguration("no key")}, apperr.KindInvalidConfiguration},
		{"model failure", chat.Request{SessionID: "s", AgentURI: agentURI}, fakeResolver{model: &echoModel{err: errors.New("503")}}, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOrchestrator(st, st, tt.resolver).Chat(context.Background(), tt.req)
			_, err := s.Next(context.Background())
			require.Error(t, err)
			assert.NotEqual(t, io.EOF, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			_, err = st.GetSession(context.Background(), "s")
			assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "failed turns are not recorded")
		})
	}
}

func TestChat_SessionIsScopedToItsAgent(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.CreateAgent(context.Background(), &models.AgentRecord{
		ID:           "agent-2",
		AgentURI:     "aif://agents/agent-2",
		BaseModelURI: "ollama://models/llama3.1",
		SystemPrompt: "You are agent two.",
	}))
	model := &echoModel{reply: "secret for one"}
	o := newOrchestrator(st, st, fakeResolver{model: model})

	_, err := collect(t, o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: agentURI, Text: "hi one"}))
	require.NoError(t, err)

	_, err = collect(t, o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: "aif://agents/agent-2", Text: "hi two"}))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
	assert.Len(t, model.seen, 1, "the second agent never sees the first agent's history")

	sess, err := st.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", sess.AgentID)
	assert.Len(t, sess.Turns, 2)
}

func TestChat_DeleteSessionDropsLock(t *testing.T) {
	st := newStore(t)
	o := newOrchestrator(st, st, fakeResolver{model: &echoModel{reply: "ok"}})

	_, err := collect(t, o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: agentURI, Text: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, 1, o.LockedSessions())

	// Deletion waits for the turn's history writes to finish.
	require.NoError(t, o.DeleteSession(context.Background(), "s1"))
	assert.Equal(t, 0, o.LockedSessions())

	_, err = st.GetSession(context.Background(), "s1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = o.DeleteSession(context.Background(), "s1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, 0, o.LockedSessions())
}

func TestChat_HistoryFailureDoesNotFailStream(t *testing.T) {
	st := newStore(t)
	history := &brokenHistory{SessionStore: st}
	o := newOrchestrator(st, history, fakeResolver{model: &echoModel{reply: "still here"}})

	chunks, err := collect(t, o.Chat(context.Background(), chat.Request{SessionID: "s1", AgentURI: agentURI, Text: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"still here"}, chunks)

	// Two turns, each tried once and retried once.
	require.Eventually(t, func() bool {
		history.mu.Lock()
		defer history.mu.Unlock()
		return history.attempts == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentID(t *testing.T) {
	id, err := chat.AgentID("aif://agents/abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = chat.AgentID("")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}
