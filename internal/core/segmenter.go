// ABOUTME: Segmenter splits extracted document text into overlapping chunks
// ABOUTME: Prefers paragraph, line, sentence and word breaks before a hard cut
package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harper/docrag/internal/models"
)

// Segmenter defaults, in bytes
const (
	DefaultTargetLength = 500
	DefaultOverlap      = 50
	DefaultTolerance    = 100
)

// breakLevels lists separators from most to least preferred.
// A chunk ends right after the separator.
var breakLevels = [][]string{
	{"\n\n", "\r\n\r\n"},
	{"\n"},
	{". ", "! ", "? ", ".\t", "。", "！", "？"},
	{" ", "\t"},
}

// Segmenter handles overlap-aware text chunking with stable provenance
type Segmenter struct {
	targetLength int
	overlap      int
	tolerance    int
}

// NewSegmenter creates a Segmenter. Zero values select the defaults.
func NewSegmenter(targetLength, overlap, tolerance int) (*Segmenter, error) {
	if targetLength == 0 {
		targetLength = DefaultTargetLength
	}
	if targetLength < 0 {
		return nil, fmt.Errorf("target length must be positive, got %d", targetLength)
	}
	if overlap < 0 || overlap >= targetLength {
		return nil, fmt.Errorf("overlap must be in [0,%d), got %d", targetLength, overlap)
	}
	if tolerance < 0 {
		return nil, fmt.Errorf("tolerance cannot be negative, got %d", tolerance)
	}
	return &Segmenter{
		targetLength: targetLength,
		overlap:      overlap,
		tolerance:    tolerance,
	}, nil
}

// NewDefaultSegmenter creates a Segmenter with 500/50/100
func NewDefaultSegmenter() *Segmenter {
	return &Segmenter{
		targetLength: DefaultTargetLength,
		overlap:      DefaultOverlap,
		tolerance:    DefaultTolerance,
	}
}

// TargetLength returns the configured chunk length
func (s *Segmenter) TargetLength() int { return s.targetLength }

// Overlap returns the configured overlap
func (s *Segmenter) Overlap() int { return s.overlap }

// Segment splits a document into chunks in document order.
// Empty or whitespace-only text yields no chunks.
func (s *Segmenter) Segment(doc models.Document) []models.Chunk {
	text := doc.RawText
	if strings.TrimSpace(text) == "" {
		return nil
	}

	n := len(text)
	var chunks []models.Chunk
	start := 0

	for {
		end := start + s.targetLength
		if end >= n {
			end = n
		} else {
			end = s.cut(text, start, end)
			// Don't leave a whitespace-only tail as its own chunk
			if strings.TrimSpace(text[end:]) == "" {
				end = n
			}
		}

		chunks = append(chunks, models.Chunk{
			ChunkID:     models.NewChunkID(doc.SourceID, start, end),
			SourceID:    doc.SourceID,
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			break
		}

		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = alignForward(text, next)
	}

	return chunks
}

// cut picks the end of the chunk starting at start whose hard limit is hardEnd
func (s *Segmenter) cut(text string, start, hardEnd int) int {
	hardEnd = alignBackward(text, start, hardEnd)

	lower := max(hardEnd-s.tolerance, start+s.overlap+1)
	if lower >= hardEnd {
		return hardEnd
	}
	window := text[lower:hardEnd]

	for _, seps := range breakLevels {
		best := -1
		for _, sep := range seps {
			if idx := strings.LastIndex(window, sep); idx >= 0 {
				best = max(best, idx+len(sep))
			}
		}
		if best > 0 {
			return lower + best
		}
	}
	return hardEnd
}

// alignBackward moves pos back to a rune boundary, staying after start.
// If no boundary exists in (start, pos] it moves forward instead.
func alignBackward(text string, start, pos int) int {
	p := pos
	for p > start && p < len(text) && !utf8.RuneStart(text[p]) {
		p--
	}
	if p > start {
		return p
	}
	return alignForward(text, pos)
}

// alignForward moves pos forward to the next rune boundary
func alignForward(text string, pos int) int {
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
