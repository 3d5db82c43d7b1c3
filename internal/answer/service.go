package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/docqa/internal/vectorstore"
)

// NoInformationAnswer is returned verbatim when retrieval finds nothing to
// ground an answer in. The generator is never called in that case, so the
// reply cannot be fabricated.
const NoInformationAnswer = "I don't have any information about that in the uploaded documents."

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

// QuestionEmbedder converts the question into a query vector.
type QuestionEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers top-k similarity searches over the indexed chunks.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.ScoredChunk, error)
}

// Generator produces the final answer text from a grounded prompt.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Source identifies the passage an answer drew on.
type Source struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Score    float32 `json:"score"`
}

// Answer is the response to one question: the generated text plus the chunks
// it was grounded in, in relevance order.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Service answers questions over the indexed document collection. It is
// stateless per call; the vector store is the only shared state.
type Service struct {
	embedder  QuestionEmbedder
	store     Searcher
	generator Generator
	composer  *Composer
	topK      int
	logger    *slog.Logger
}

// NewService wires the query path. If topK <= 0, it defaults to 4.
func NewService(embedder QuestionEmbedder, store Searcher, generator Generator, composer *Composer, topK int) *Service {
	if topK <= 0 {
		topK = 4
	}
	return &Service{
		embedder:  embedder,
		store:     store,
		generator: generator,
		composer:  composer,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// Retrieve embeds the question and returns the top-k most similar chunks,
// relevance-descending. An empty index yields an empty result.
func (s *Service) Retrieve(ctx context.Context, question string, topK int) ([]vectorstore.ScoredChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = s.topK
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	chunks, err := s.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return chunks, nil
}

// Answer embeds the question, retrieves the most similar chunks, and asks the
// generator for a reply grounded in them. Capability failures propagate to
// the caller; they are never papered over with a made-up answer.
func (s *Service) Answer(ctx context.Context, question string) (Answer, error) {
	chunks, err := s.Retrieve(ctx, question, s.topK)
	if err != nil {
		return Answer{}, err
	}

	if len(chunks) == 0 {
		s.logger.Debug("no chunks retrieved", "question_len", len(question))
		return Answer{Text: NoInformationAnswer, Sources: []Source{}}, nil
	}

	prompt, used := s.composer.Compose(chunks)
	text, err := s.generator.Complete(ctx, prompt, question)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	sources := make([]Source, len(used))
	for i, ch := range used {
		sources[i] = Source{
			Document: ch.SourceDocument,
			Page:     ch.PageNumber,
			Score:    ch.Score,
		}
	}
	return Answer{Text: text, Sources: sources}, nil
}
