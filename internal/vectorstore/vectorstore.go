package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/docqa/internal/chunker"
)

// Store is the nearest-neighbor store capability: it persists embedded chunks
// in a named collection and answers top-k similarity searches over them.
type Store interface {
	// EnsureCollection creates the backing collection if missing. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Upsert writes records keyed by (SourceDocument, SequenceIndex), so
	// reprocessing a document overwrites rather than duplicates.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the top-k chunks most similar to the query vector,
	// relevance-descending. An empty collection yields an empty result,
	// not an error.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record pairs a chunk with its embedding vector for storage.
type Record struct {
	Chunk  chunker.Chunk
	Vector []float32
}

// ScoredChunk is a retrieved chunk with its similarity score.
type ScoredChunk struct {
	chunker.Chunk
	Score float32
}

// pointNamespace is the fixed UUID namespace for deriving point IDs.
// Changing it orphans every previously stored point.
var pointNamespace = uuid.MustParse("8a6e1d42-9c35-4f7b-b1aa-54d30c2fe901")

// PointID derives the deterministic store ID for a chunk position. The same
// (document, sequence) pair always maps to the same ID, which is what makes
// at-least-once job redelivery converge instead of duplicating chunks.
func PointID(sourceDocument string, sequenceIndex int) string {
	name := fmt.Sprintf("%s#%d", sourceDocument, sequenceIndex)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}
