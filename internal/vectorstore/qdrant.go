package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/docqa/internal/chunker"
)

// Compile-time check that Qdrant implements Store.
var _ Store = (*Qdrant)(nil)

// Qdrant is a minimal REST client for a Qdrant collection using cosine
// distance. The collection name and vector dimension are fixed at
// construction and must match the embedding client's output shape on both
// the ingest and query paths.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client
}

// QdrantConfig configures the Qdrant client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewQdrant creates a Qdrant client. It does not touch the network; call
// EnsureCollection before first use.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant answers 200 when the collection already exists with the same
	// schema and 409 when it exists at all; both mean "present".
	err := q.doJSON(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, nil)
	if err != nil && !isConflict(err) {
		return fmt.Errorf("ensuring collection %s: %w", q.collection, err)
	}
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (q *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		if len(r.Vector) != q.dimension {
			return fmt.Errorf("record %s#%d: vector dimension %d, collection expects %d",
				r.Chunk.SourceDocument, r.Chunk.SequenceIndex, len(r.Vector), q.dimension)
		}
		points[i] = qdrantPoint{
			ID:     PointID(r.Chunk.SourceDocument, r.Chunk.SequenceIndex),
			Vector: r.Vector,
			Payload: map[string]any{
				"document": r.Chunk.SourceDocument,
				"page":     r.Chunk.PageNumber,
				"sequence": r.Chunk.SequenceIndex,
				"text":     r.Chunk.Text,
			},
		}
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", q.collection, err)
	}

	results := make([]ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		c := chunker.Chunk{}
		if v, ok := r.Payload["document"].(string); ok {
			c.SourceDocument = v
		}
		if v, ok := r.Payload["page"].(float64); ok {
			c.PageNumber = int(v)
		}
		if v, ok := r.Payload["sequence"].(float64); ok {
			c.SequenceIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			c.Text = v
		}
		results = append(results, ScoredChunk{Chunk: c, Score: r.Score})
	}
	return results, nil
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return resp.Result.Count, nil
}

// statusError reports a non-2xx Qdrant response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.code, e.body)
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusConflict
}

func (q *Qdrant) doJSON(ctx context.Context, method, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
