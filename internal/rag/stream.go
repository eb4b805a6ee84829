// ABOUTME: Streaming answers as a pull-based sequence of delta events
// ABOUTME: A pump goroutine forwards deltas and ends with exactly one terminal event
package rag

import (
	"context"
	"io"
	"sync"

	"github.com/harper/docrag/internal/models"
)

// Stream is a finite, non-restartable sequence of answer events.
// Deltas arrive in generation order followed by one Finished or Err event.
type Stream struct {
	events    <-chan models.StreamEvent
	cancel    context.CancelFunc
	done      chan struct{}
	ended     bool
	closeOnce sync.Once
}

// Next returns the next event. It returns false once the terminal event has
// been delivered, or when the caller canceled the stream.
func (s *Stream) Next() (models.StreamEvent, bool) {
	if s.ended {
		return models.StreamEvent{}, false
	}
	ev, ok := <-s.events
	if !ok {
		s.ended = true
		return models.StreamEvent{}, false
	}
	if ev.IsTerminal() {
		s.ended = true
	}
	return ev, true
}

// Close stops generation and waits for the pump to release its resources.
// It is safe to call more than once and after the stream ended.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// AnswerStream starts a streamed answer. Cancelling ctx or calling Close
// stops pulling deltas; no terminal event is owed to a caller that left.
func (o *Orchestrator) AnswerStream(ctx context.Context, q Query) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan models.StreamEvent)
	s := &Stream{events: events, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(events)
		o.pump(ctx, q, events)
	}()
	return s
}

func (o *Orchestrator) pump(ctx context.Context, q Query, events chan<- models.StreamEvent) {
	send := func(ev models.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	prompt, _, _, err := o.prepare(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			send(models.StreamEvent{Err: err})
		}
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	delivered := false
	emit := func(delta string) bool {
		delivered = true
		return send(models.StreamEvent{Delta: delta})
	}

	for attempt := 0; ; attempt++ {
		err := o.streamOnce(genCtx, prompt, emit)
		if err == nil {
			send(models.StreamEvent{Finished: true})
			return
		}
		if ctx.Err() != nil {
			return
		}
		// Retrying after a delta would repeat text the caller already has
		if attempt > 0 || delivered || !o.backoff(genCtx, err) {
			send(models.StreamEvent{Err: o.generationError(genCtx, err)})
			return
		}
	}
}

// streamOnce forwards one generator stream through emit. Recv runs in its own
// goroutine so the timeout holds even if the generator ignores ctx.
func (o *Orchestrator) streamOnce(ctx context.Context, prompt string, emit func(string) bool) error {
	stream, err := o.generator.Stream(ctx, prompt)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	type recv struct {
		delta string
		err   error
	}
	results := make(chan recv)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			delta, err := stream.Recv()
			select {
			case results <- recv{delta, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			if r.err == io.EOF {
				return nil
			}
			if r.err != nil {
				return r.err
			}
			if r.delta == "" {
				continue
			}
			if !emit(r.delta) {
				return context.Canceled
			}
		}
	}
}
