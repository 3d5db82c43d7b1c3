package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/docqa/internal/vectorstore"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockSearcher struct {
	results  []vectorstore.ScoredChunk
	err      error
	lastTopK int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, topK int) ([]vectorstore.ScoredChunk, error) {
	m.lastTopK = topK
	return m.results, m.err
}

type mockGenerator struct {
	completeFn func(ctx context.Context, systemPrompt, userMessage string) (string, error)
	calls      int
	lastPrompt string
}

func (m *mockGenerator) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	m.calls++
	m.lastPrompt = systemPrompt
	if m.completeFn != nil {
		return m.completeFn(ctx, systemPrompt, userMessage)
	}
	return "generated answer", nil
}

func newTestService(searcher *mockSearcher, gen *mockGenerator) *Service {
	return NewService(&mockEmbedder{}, searcher, gen, NewComposer(0), 0)
}

func TestAnswerHappyPath(t *testing.T) {
	searcher := &mockSearcher{results: []vectorstore.ScoredChunk{
		scored("handbook.pdf", 12, "Vacation policy text.", 0.91),
		scored("handbook.pdf", 13, "More policy text.", 0.77),
	}}
	gen := &mockGenerator{}
	s := newTestService(searcher, gen)

	ans, err := s.Answer(context.Background(), "How many vacation days do I get?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != "generated answer" {
		t.Errorf("Text = %q", ans.Text)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(ans.Sources))
	}
	if ans.Sources[0].Document != "handbook.pdf" || ans.Sources[0].Page != 12 {
		t.Errorf("Sources[0] = %+v", ans.Sources[0])
	}
	if ans.Sources[0].Score != 0.91 {
		t.Errorf("Sources[0].Score = %v, want 0.91", ans.Sources[0].Score)
	}
	if searcher.lastTopK != 4 {
		t.Errorf("search topK = %d, want default 4", searcher.lastTopK)
	}
	if !strings.Contains(gen.lastPrompt, "Vacation policy text.") {
		t.Error("generator prompt does not contain the retrieved context")
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	s := newTestService(&mockSearcher{}, &mockGenerator{})

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := s.Answer(context.Background(), q); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Answer(%q) error = %v, want ErrEmptyQuestion", q, err)
		}
	}
}

// An empty index answers with the fixed no-information text and never calls
// the generator, so nothing can be fabricated.
func TestAnswerEmptyRetrieval(t *testing.T) {
	gen := &mockGenerator{}
	s := newTestService(&mockSearcher{results: nil}, gen)

	ans, err := s.Answer(context.Background(), "Anything in there?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != NoInformationAnswer {
		t.Errorf("Text = %q, want NoInformationAnswer", ans.Text)
	}
	if ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil slice", ans.Sources)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestAnswerEmbedderFailure(t *testing.T) {
	embErr := errors.New("embedding service down")
	s := NewService(&mockEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) { return nil, embErr },
	}, &mockSearcher{}, &mockGenerator{}, NewComposer(0), 0)

	_, err := s.Answer(context.Background(), "question")
	if !errors.Is(err, embErr) {
		t.Errorf("Answer error = %v, want wrapped %v", err, embErr)
	}
}

func TestAnswerGeneratorFailure(t *testing.T) {
	genErr := errors.New("model overloaded")
	searcher := &mockSearcher{results: []vectorstore.ScoredChunk{
		scored("a.pdf", 1, "some context", 0.8),
	}}
	gen := &mockGenerator{
		completeFn: func(context.Context, string, string) (string, error) { return "", genErr },
	}
	s := newTestService(searcher, gen)

	_, err := s.Answer(context.Background(), "question")
	if !errors.Is(err, genErr) {
		t.Errorf("Answer error = %v, want wrapped %v", err, genErr)
	}
}

func TestRetrieveOverridesTopK(t *testing.T) {
	searcher := &mockSearcher{}
	s := newTestService(searcher, &mockGenerator{})

	if _, err := s.Retrieve(context.Background(), "query", 9); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if searcher.lastTopK != 9 {
		t.Errorf("search topK = %d, want 9", searcher.lastTopK)
	}

	if _, err := s.Retrieve(context.Background(), "query", 0); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if searcher.lastTopK != 4 {
		t.Errorf("search topK = %d, want service default 4", searcher.lastTopK)
	}
}
