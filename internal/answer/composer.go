package answer

import (
	"fmt"
	"strings"

	"github.com/kalambet/docqa/internal/vectorstore"
)

const defaultMaxContextTokens = 4000

const systemPreamble = `You are a helpful assistant who answers the user's question using only the provided context from uploaded PDF documents.
If the context does not contain the answer, say that you don't know. Never invent information that is not in the context.
When you use a passage, mention the document and page it came from.`

// Composer assembles the grounded system prompt from retrieved chunks.
// Composition is deterministic: the same chunks in the same order always
// produce the same prompt, and chunks that would push the prompt over the
// token budget are dropped lowest-ranked first.
type Composer struct {
	MaxContextTokens int
}

// NewComposer creates a Composer with the given token budget for injected
// context. If maxContextTokens <= 0, the default (4000) is used.
func NewComposer(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the system prompt for a retrieval result. It returns the
// prompt and the chunks actually included, in the same relevance order they
// arrived in, so the caller can report exact provenance.
func (c *Composer) Compose(chunks []vectorstore.ScoredChunk) (string, []vectorstore.ScoredChunk) {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	if len(chunks) == 0 {
		return sb.String(), nil
	}

	sb.WriteString("\n\nContext:\n")
	remaining := c.MaxContextTokens - estimateTokens(sb.String())

	var used []vectorstore.ScoredChunk
	for _, ch := range chunks {
		entry := formatChunk(len(used)+1, ch)
		tokens := estimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		used = append(used, ch)
		remaining -= tokens
	}

	return sb.String(), used
}

func formatChunk(n int, ch vectorstore.ScoredChunk) string {
	return fmt.Sprintf("[%d] (document: %s, page %d)\n%s\n\n", n, ch.SourceDocument, ch.PageNumber, ch.Text)
}

// estimateTokens provides a rough token count using the 4 chars per token heuristic.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
