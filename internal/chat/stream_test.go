package chat_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifoundry/aifoundry/server/internal/chat"
)

func collect(t *testing.T, s *chat.Stream) ([]string, error) {
	t.Helper()
	var chunks []string
	for text, err := range s.All(context.Background()) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, text)
	}
	return chunks, nil
}

func TestStream_IsLazy(t *testing.T) {
	var ran atomic.Bool
	s := chat.NewStream(context.Background(), func(_ context.Context, e *chat.Emitter) {
		ran.Store(true)
		e.Emit("hi")
	})

	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())

	chunks, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, chunks)
	assert.True(t, ran.Load())
	assert.Equal(t, chat.PhaseFinished, s.Phase())
}

func TestStream_FailBeforeStart(t *testing.T) {
	boom := errors.New("boom")
	s := chat.NewStream(context.Background(), func(_ context.Context, e *chat.Emitter) {
		e.Fail(boom)
	})

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStream_FailAfterStartIsInBand(t *testing.T) {
	s := chat.NewStream(context.Background(), func(_ context.Context, e *chat.Emitter) {
		e.Emit("partial")
		e.Fail(errors.New("history write failed"))
		e.Emit("dropped")
	})

	chunks, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial", "history write failed"}, chunks)
}

func TestStream_FailAfterFinishIsSwallowed(t *testing.T) {
	s := chat.NewStream(context.Background(), func(_ context.Context, e *chat.Emitter) {
		e.Emit("answer")
		e.Complete()
		e.Fail(errors.New("late"))
		e.Complete()
	})

	chunks, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"answer"}, chunks)
}

func TestStream_ProducerReturningCompletes(t *testing.T) {
	s := chat.NewStream(context.Background(), func(context.Context, *chat.Emitter) {})
	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStream_NextHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := chat.NewStream(context.Background(), func(_ context.Context, e *chat.Emitter) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailed(t *testing.T) {
	_, err := chat.Failed(errors.New("nope")).Next(context.Background())
	assert.EqualError(t, err, "nope")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "not-started", chat.PhaseNotStarted.String())
	assert.Equal(t, "started", chat.PhaseStarted.String())
	assert.Equal(t, "finished", chat.PhaseFinished.String())
}
