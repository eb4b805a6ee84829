// ABOUTME: Prompt assembly for grounded answers
// ABOUTME: Tags every context fragment with its source and byte range for traceability
package rag

import (
	"fmt"
	"strings"

	"github.com/harper/docrag/internal/models"
)

const noContextNotice = "No relevant context was found in the document collection. " +
	"Say so plainly instead of guessing, unless the question can be answered without documents."

// ContextTag labels a chunk in the prompt as [source <id> bytes <start>-<end>]
func ContextTag(c models.Chunk) string {
	return fmt.Sprintf("[source %s bytes %d-%d]", c.SourceID, c.StartOffset, c.EndOffset)
}

// BuildPrompt assembles the instruction, context, prior turns and the question.
// It reports whether the prompt carries no retrieved context.
func BuildPrompt(persona Persona, question string, context models.RetrievalResult, history []models.Turn, answerAnyway bool) (string, bool) {
	contextFree := len(context) == 0

	var sb strings.Builder
	if answerAnyway {
		sb.WriteString(persona.General)
	} else {
		sb.WriteString(persona.Grounded)
	}
	sb.WriteString("\n\n")

	if contextFree {
		if !answerAnyway {
			sb.WriteString(noContextNotice)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("Context fragments:\n")
		for _, sc := range context {
			sb.WriteString(ContextTag(sc.Chunk))
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(sc.Chunk.Text))
			sb.WriteString("\n\n")
		}
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, strings.TrimSpace(turn.Content))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\nAnswer:")
	return sb.String(), contextFree
}
