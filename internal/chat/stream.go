package chat

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Phase is how far a stream has progressed. It only moves forward.
type Phase int32

const (
	PhaseNotStarted Phase = iota
	PhaseStarted
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseStarted:
		return "started"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

type event struct {
	text string
	err  error
}

// Stream is a lazy, single-consumer sequence of text chunks. The producer
// runs on the first Next or All call. A stream ends with io.EOF, or with a
// terminal error when it failed before emitting anything.
type Stream struct {
	once    sync.Once
	ctx     context.Context
	produce func(ctx context.Context, e *Emitter)
	events  chan event
	emitter *Emitter
}

// NewStream wraps a producer. produce must end by calling Complete or Fail
// on the emitter; if it returns without doing so the stream completes.
func NewStream(ctx context.Context, produce func(ctx context.Context, e *Emitter)) *Stream {
	s := &Stream{ctx: ctx, produce: produce, events: make(chan event, 2)}
	s.emitter = &Emitter{events: s.events, ctx: ctx}
	return s
}

// Failed returns a stream that fails with err before emitting anything.
func Failed(err error) *Stream {
	return NewStream(context.Background(), func(_ context.Context, e *Emitter) { e.Fail(err) })
}

func (s *Stream) start() {
	s.once.Do(func() {
		go func() {
			defer s.emitter.Complete()
			s.produce(s.ctx, s.emitter)
		}()
	})
}

// Next returns the next chunk, io.EOF once the stream has completed, or the
// error of a stream that failed before starting.
func (s *Stream) Next(ctx context.Context) (string, error) {
	s.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case ev, ok := <-s.events:
		switch {
		case !ok:
			return "", io.EOF
		case ev.err != nil:
			return "", ev.err
		}
		return ev.text, nil
	}
}

// All iterates the stream. A terminal error is yielded once as the last
// pair; completion ends the iteration without one.
func (s *Stream) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			text, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(text, err) || err != nil {
				return
			}
		}
	}
}

// Phase reports the producer's current phase.
func (s *Stream) Phase() Phase { return s.emitter.Phase() }

// Emitter is the producer side of a Stream.
type Emitter struct {
	mu     sync.Mutex
	phase  atomic.Int32
	events chan event
	ctx    context.Context
}

func (e *Emitter) Phase() Phase { return Phase(e.phase.Load()) }

// Emit sends a chunk and moves the stream to started. Chunks emitted after
// completion are dropped.
func (e *Emitter) Emit(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Phase() == PhaseFinished {
		return
	}
	e.phase.Store(int32(PhaseStarted))
	e.send(event{text: text})
}

// Fail reports err according to the phase:
//   - not started: the consumer receives err from Next; the stream ends.
//   - started: err's text is sent as a final chunk and the stream completes
//     normally, since content has already gone out.
//   - finished: err is logged and otherwise dropped.
func (e *Emitter) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Phase() {
	case PhaseNotStarted:
		e.send(event{err: err})
	case PhaseStarted:
		e.send(event{text: err.Error()})
	case PhaseFinished:
		log.Warn().Err(err).Msg("Chat stream error after completion")
		return
	}
	e.finishLocked()
}

// Complete ends the stream. Further calls are no-ops.
func (e *Emitter) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Phase() != PhaseFinished {
		e.finishLocked()
	}
}

func (e *Emitter) finishLocked() {
	e.phase.Store(int32(PhaseFinished))
	close(e.events)
}

// send delivers ev unless the stream's context is done, so an abandoned
// consumer cannot block the producer.
func (e *Emitter) send(ev event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}
