// ABOUTME: Generation client boundary used by the answer orchestrator
// ABOUTME: Defines Generator, the pull-based DeltaStream and a cumulative-text adapter
package llm

import (
	"context"
)

// Generator produces answers from a fully built prompt
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (DeltaStream, error)
}

// DeltaStream yields answer fragments in generation order.
// Recv returns io.EOF after the last fragment.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// CumulativeSource yields the whole answer generated so far on each call
type CumulativeSource interface {
	Recv() (string, error)
	Close() error
}

// CumulativeStream turns a source of growing full texts into deltas.
// Each delta is the suffix the current text adds to the previous one.
type CumulativeStream struct {
	src  CumulativeSource
	prev string
}

// NewCumulativeStream wraps src
func NewCumulativeStream(src CumulativeSource) *CumulativeStream {
	return &CumulativeStream{src: src}
}

// Recv returns the next non-empty delta
func (s *CumulativeStream) Recv() (string, error) {
	for {
		current, err := s.src.Recv()
		if err != nil {
			return "", err
		}
		var delta string
		if len(current) > len(s.prev) {
			delta = current[len(s.prev):]
		}
		s.prev = current
		if delta != "" {
			return delta, nil
		}
	}
}

// Close closes the underlying source
func (s *CumulativeStream) Close() error {
	return s.src.Close()
}
