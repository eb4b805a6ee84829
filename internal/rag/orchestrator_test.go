// ABOUTME: Tests for complete and streamed answers using fake retrieval and generation
// ABOUTME: Covers retries, timeouts, cancellation and the single terminal event

package rag

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/retrieval"
)

type fakeRetriever struct {
	result models.RetrievalResult
	err    error
	topK   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, floor *float64) (models.RetrievalResult, error) {
	f.topK = topK
	return f.result, f.err
}

type fakeGenerator struct {
	mu          sync.Mutex
	prompts     []string
	answer      string
	deltas      []string
	failCalls   int  // first failCalls calls fail outright
	failAfter   int  // stream fails after this many deltas; <0 never
	block       bool // Recv/Complete block ignoring ctx
	calls       atomic.Int32
	openStreams []*fakeStream
}

func (g *fakeGenerator) record(prompt string) int32 {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.calls.Add(1)
}

func (g *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	n := g.record(prompt)
	if int(n) <= g.failCalls {
		return "", errors.New("upstream 503")
	}
	if g.block {
		select {}
	}
	return g.answer, nil
}

func (g *fakeGenerator) Stream(ctx context.Context, prompt string) (llm.DeltaStream, error) {
	n := g.record(prompt)
	if int(n) <= g.failCalls {
		return nil, errors.New("upstream 503")
	}
	s := &fakeStream{deltas: g.deltas, failAfter: g.failAfter, block: g.block, unblock: make(chan struct{})}
	g.mu.Lock()
	g.openStreams = append(g.openStreams, s)
	g.mu.Unlock()
	return s, nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

type fakeStream struct {
	deltas    []string
	sent      int
	failAfter int
	block     bool
	unblock   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *fakeStream) Recv() (string, error) {
	if s.block {
		<-s.unblock
		return "", errors.New("closed")
	}
	if s.failAfter >= 0 && s.sent == s.failAfter {
		return "", errors.New("connection reset")
	}
	if s.sent == len(s.deltas) {
		return "", io.EOF
	}
	d := s.deltas[s.sent]
	s.sent++
	return d, nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	s.closeOnce.Do(func() { close(s.unblock) })
	return nil
}

func sampleResult() models.RetrievalResult {
	return models.RetrievalResult{
		{InternalID: 1, Score: 0.9, Chunk: models.Chunk{ChunkID: "chunk_1", SourceID: "garden", Text: "Tomatoes need six hours of sun.", StartOffset: 0, EndOffset: 31}},
		{InternalID: 2, Score: 0.7, Chunk: models.Chunk{ChunkID: "chunk_2", SourceID: "garden", Text: "Water deeply twice a week.", StartOffset: 200, EndOffset: 226}},
	}
}

func newTestOrchestrator(r Retriever, g llm.Generator) *Orchestrator {
	return NewOrchestrator(r, g, Options{
		GenerationTimeout: time.Second,
		RetryDelay:        time.Millisecond,
	})
}

func drain(t *testing.T, s *Stream) (deltas []string, terminal []models.StreamEvent) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		evCh := make(chan struct {
			ev models.StreamEvent
			ok bool
		}, 1)
		go func() {
			ev, ok := s.Next()
			evCh <- struct {
				ev models.StreamEvent
				ok bool
			}{ev, ok}
		}()
		select {
		case <-deadline:
			t.Fatal("stream did not terminate")
		case r := <-evCh:
			if !r.ok {
				return deltas, terminal
			}
			if r.ev.IsTerminal() {
				terminal = append(terminal, r.ev)
			} else {
				deltas = append(deltas, r.ev.Delta)
			}
		}
	}
}

func TestAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: "About six hours.", failAfter: -1}
	ret := &fakeRetriever{result: sampleResult()}
	o := newTestOrchestrator(ret, gen)

	ans, err := o.Answer(context.Background(), Query{Text: "How much sun do tomatoes need?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if ans.Text != "About six hours." {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.ContextFree {
		t.Error("ContextFree = true with retrieved context")
	}
	if len(ans.Sources) != 2 {
		t.Errorf("Sources = %d, want 2", len(ans.Sources))
	}
	if ret.topK != DefaultTopK {
		t.Errorf("retrieval topK = %d, want %d", ret.topK, DefaultTopK)
	}

	prompt := gen.lastPrompt()
	for _, want := range []string{"[source garden bytes 0-31]", "[source garden bytes 200-226]", "Question: How much sun do tomatoes need?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAnswer_ContextFree(t *testing.T) {
	gen := &fakeGenerator{answer: "I could not find that.", failAfter: -1}
	o := newTestOrchestrator(&fakeRetriever{}, gen)

	ans, err := o.Answer(context.Background(), Query{Text: "Who won the cup?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !ans.ContextFree {
		t.Error("ContextFree = false with no context")
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
	if !strings.Contains(gen.lastPrompt(), noContextNotice) {
		t.Error("context-free prompt should say no context was found")
	}

	ans, err = o.Answer(context.Background(), Query{Text: "Who won the cup?", AnswerAnyway: true})
	if err != nil {
		t.Fatalf("Answer(AnswerAnyway) error = %v", err)
	}
	if !ans.ContextFree {
		t.Error("ContextFree should be reported in answer-anyway mode too")
	}
	if strings.Contains(gen.lastPrompt(), noContextNotice) {
		t.Error("answer-anyway prompt should not carry the no-context notice")
	}
}

func TestAnswer_RetriesOnce(t *testing.T) {
	gen := &fakeGenerator{answer: "ok", failCalls: 1, failAfter: -1}
	o := newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)

	if _, err := o.Answer(context.Background(), Query{Text: "q"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls.Load())
	}

	gen = &fakeGenerator{answer: "ok", failCalls: 5, failAfter: -1}
	o = newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)
	_, err := o.Answer(context.Background(), Query{Text: "q"})
	if !errors.Is(err, models.ErrGenerationFailure) {
		t.Errorf("Answer() error = %v, want GenerationFailure", err)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls.Load())
	}
}

func TestAnswer_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: true, failAfter: -1}
	o := NewOrchestrator(&fakeRetriever{result: sampleResult()}, gen, Options{GenerationTimeout: 50 * time.Millisecond})

	_, err := o.Answer(context.Background(), Query{Text: "q"})
	if !errors.Is(err, models.ErrGenerationFailure) {
		t.Fatalf("Answer() error = %v, want GenerationFailure", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %q, want a timeout message", err.Error())
	}
}

func TestAnswer_RetrievalError(t *testing.T) {
	ret := &fakeRetriever{err: models.Errorf(models.KindEmbeddingUnavailable, "offline")}
	o := newTestOrchestrator(ret, &fakeGenerator{failAfter: -1})

	if _, err := o.Answer(context.Background(), Query{Text: "q"}); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Answer() error = %v, want EmbeddingUnavailable", err)
	}
	if _, err := o.Answer(context.Background(), Query{Text: " "}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Answer(empty) error = %v, want InvalidArgument", err)
	}
}

func TestAnswerStream(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"Six ", "hours ", "of sun."}, failAfter: -1}
	o := newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)

	s := o.AnswerStream(context.Background(), Query{Text: "q"})
	defer s.Close()

	deltas, terminal := drain(t, s)
	if strings.Join(deltas, "") != "Six hours of sun." {
		t.Errorf("deltas = %q", deltas)
	}
	if len(terminal) != 1 || !terminal[0].Finished {
		t.Fatalf("terminal events = %+v, want one finished", terminal)
	}
	if _, ok := s.Next(); ok {
		t.Error("Next() after terminal event should return false")
	}
}

func TestAnswerStream_EmptyIndexFinishes(t *testing.T) {
	emb, _ := embedding.NewHashEmbedder(32)
	idx, _ := index.New(index.Config{ModelID: emb.ModelID(), Dimension: emb.Dimension()})
	engine := retrieval.NewEngine(emb, idx, retrieval.Options{})

	floor := 0.5
	gen := &fakeGenerator{failAfter: -1}
	o := newTestOrchestrator(engine, gen)

	s := o.AnswerStream(context.Background(), Query{Text: "anything at all", ScoreFloor: &floor})
	defer s.Close()

	deltas, terminal := drain(t, s)
	if len(deltas) != 0 {
		t.Errorf("deltas = %q, want none", deltas)
	}
	if len(terminal) != 1 || !terminal[0].Finished {
		t.Errorf("terminal events = %+v, want one finished", terminal)
	}
	if !strings.Contains(gen.lastPrompt(), noContextNotice) {
		t.Error("prompt should be marked context-free")
	}
}

func TestAnswerStream_RetryBeforeFirstDelta(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"ok"}, failCalls: 1, failAfter: -1}
	o := newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)

	s := o.AnswerStream(context.Background(), Query{Text: "q"})
	defer s.Close()

	deltas, terminal := drain(t, s)
	if len(deltas) != 1 || len(terminal) != 1 || !terminal[0].Finished {
		t.Errorf("deltas = %q, terminal = %+v", deltas, terminal)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls.Load())
	}
}

func TestAnswerStream_NoRetryAfterDelta(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"partial ", "answer"}, failAfter: 1}
	o := newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)

	s := o.AnswerStream(context.Background(), Query{Text: "q"})
	defer s.Close()

	deltas, terminal := drain(t, s)
	if len(deltas) != 1 || deltas[0] != "partial " {
		t.Errorf("deltas = %q, want [partial ]", deltas)
	}
	if len(terminal) != 1 || !errors.Is(terminal[0].Err, models.ErrGenerationFailure) {
		t.Fatalf("terminal events = %+v, want one generation failure", terminal)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
}

func TestAnswerStream_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: true, failAfter: -1}
	o := NewOrchestrator(&fakeRetriever{result: sampleResult()}, gen, Options{GenerationTimeout: 50 * time.Millisecond})

	s := o.AnswerStream(context.Background(), Query{Text: "q"})
	defer s.Close()

	_, terminal := drain(t, s)
	if len(terminal) != 1 || !errors.Is(terminal[0].Err, models.ErrGenerationFailure) {
		t.Fatalf("terminal events = %+v, want one generation failure", terminal)
	}
	if !strings.Contains(terminal[0].Err.Error(), "timed out") {
		t.Errorf("error = %q, want a timeout message", terminal[0].Err)
	}
}

func TestAnswerStream_CallerCancel(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"one ", "two ", "three"}, failAfter: -1}
	o := newTestOrchestrator(&fakeRetriever{result: sampleResult()}, gen)

	ctx, cancel := context.WithCancel(context.Background())
	s := o.AnswerStream(ctx, Query{Text: "q"})

	ev, ok := s.Next()
	if !ok || ev.Delta != "one " {
		t.Fatalf("first event = %+v, %v", ev, ok)
	}
	cancel()
	s.Close()

	gen.mu.Lock()
	streams := gen.openStreams
	gen.mu.Unlock()
	if len(streams) != 1 || !streams[0].closed.Load() {
		t.Error("generator stream was not closed after cancellation")
	}
	if _, ok := s.Next(); ok {
		// At most one in-flight delta may still be buffered by the race between send and cancel
		if _, ok := s.Next(); ok {
			t.Error("stream kept producing after cancellation")
		}
	}
}

func TestAnswerStream_RetrievalErrorEvent(t *testing.T) {
	ret := &fakeRetriever{err: models.Errorf(models.KindDimensionOrModelMismatch, "index built with another model")}
	o := newTestOrchestrator(ret, &fakeGenerator{failAfter: -1})

	s := o.AnswerStream(context.Background(), Query{Text: "q"})
	defer s.Close()

	_, terminal := drain(t, s)
	if len(terminal) != 1 || !errors.Is(terminal[0].Err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("terminal events = %+v, want mismatch error", terminal)
	}
}
