// ABOUTME: RAG orchestrator combining retrieval with answer generation
// ABOUTME: Enforces the generation timeout and a single bounded retry
package rag

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/util"
)

// Defaults for Options
const (
	DefaultTopK              = 5
	DefaultGenerationTimeout = 60 * time.Second
	DefaultRetryDelay        = 500 * time.Millisecond
)

// Retriever supplies context for a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, floor *float64) (models.RetrievalResult, error)
}

// Options configures an Orchestrator
type Options struct {
	TopK              int
	ScoreFloor        *float64
	GenerationTimeout time.Duration
	RetryDelay        time.Duration
	Persona           Persona
	Logger            *log.Logger
}

// Query is one question to answer
type Query struct {
	Text string
	// TopK and ScoreFloor override the orchestrator defaults when set
	TopK       int
	ScoreFloor *float64
	History    []models.Turn
	// AnswerAnyway lets the model fall back to general knowledge
	AnswerAnyway bool
}

// Answer is a complete generated answer with the context it was grounded on
type Answer struct {
	Text        string                 `json:"text"`
	Sources     models.RetrievalResult `json:"sources"`
	ContextFree bool                   `json:"context_free"`
}

// Orchestrator answers queries over an index
type Orchestrator struct {
	retriever  Retriever
	generator  llm.Generator
	topK       int
	floor      *float64
	timeout    time.Duration
	retryDelay time.Duration
	persona    Persona
	logger     *log.Logger
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(retriever Retriever, generator llm.Generator, opts Options) *Orchestrator {
	o := &Orchestrator{
		retriever:  retriever,
		generator:  generator,
		topK:       opts.TopK,
		floor:      opts.ScoreFloor,
		timeout:    opts.GenerationTimeout,
		retryDelay: opts.RetryDelay,
		persona:    opts.Persona,
		logger:     opts.Logger,
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	if o.timeout <= 0 {
		o.timeout = DefaultGenerationTimeout
	}
	if o.retryDelay <= 0 {
		o.retryDelay = DefaultRetryDelay
	}
	if o.persona.Name == "" {
		o.persona, _ = LookupPersona(DefaultPersona)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	return o
}

// prepare runs retrieval and builds the prompt. Retrieval finishes before
// generation starts, so no index state is held while the model runs.
func (o *Orchestrator) prepare(ctx context.Context, q Query) (string, models.RetrievalResult, bool, error) {
	if strings.TrimSpace(q.Text) == "" {
		return "", nil, false, models.Errorf(models.KindInvalidArgument, "query cannot be empty")
	}
	topK := q.TopK
	if topK == 0 {
		topK = o.topK
	}
	floor := q.ScoreFloor
	if floor == nil {
		floor = o.floor
	}

	result, err := o.retriever.Retrieve(ctx, q.Text, topK, floor)
	if err != nil {
		return "", nil, false, err
	}
	prompt, contextFree := BuildPrompt(o.persona, q.Text, result, q.History, q.AnswerAnyway)
	if contextFree {
		o.logger.Printf("no context above floor for query; generating context-free answer")
	}
	return prompt, result, contextFree, nil
}

// Answer retrieves context and returns the complete generated answer
func (o *Orchestrator) Answer(ctx context.Context, q Query) (*Answer, error) {
	prompt, result, contextFree, err := o.prepare(ctx, q)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var text string
	for attempt := 0; ; attempt++ {
		text, err = o.completeOnce(genCtx, prompt)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 || !o.backoff(genCtx, err) {
			return nil, o.generationError(genCtx, err)
		}
	}

	return &Answer{Text: text, Sources: result, ContextFree: contextFree}, nil
}

// completeOnce races one completion against ctx so a generator that ignores
// cancellation cannot outlive the timeout
func (o *Orchestrator) completeOnce(ctx context.Context, prompt string) (string, error) {
	type completion struct {
		text string
		err  error
	}
	done := make(chan completion, 1)
	go func() {
		text, err := o.generator.Complete(ctx, prompt)
		done <- completion{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case c := <-done:
		return c.text, c.err
	}
}

// backoff waits before the single retry. It returns false when there is no
// time left to retry.
func (o *Orchestrator) backoff(genCtx context.Context, cause error) bool {
	if genCtx.Err() != nil {
		return false
	}
	o.logger.Printf("Warning: generation failed, retrying once: %v", cause)

	return util.Backoff(genCtx, o.retryDelay, 1) == nil
}

// generationError classifies a generation failure, naming timeouts explicitly
func (o *Orchestrator) generationError(genCtx context.Context, err error) error {
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return models.Errorf(models.KindGenerationFailure, "generation timed out after %s", o.timeout)
	}
	if errors.Is(err, models.ErrGenerationFailure) {
		return err
	}
	return models.Errorf(models.KindGenerationFailure, "%w", err)
}
