package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/docqa/internal/extract"
)

const (
	defaultChunkSize = 1200
	defaultOverlap   = 200
)

// Chunk is a bounded passage of document text, addressable by its source
// document and position. SequenceIndex is unique within a document and,
// together with SourceDocument, forms the idempotency key for the vector
// store: reprocessing the same file upserts the same records.
type Chunk struct {
	Text           string
	SourceDocument string
	PageNumber     int
	SequenceIndex  int
}

// Chunker splits extracted page text into fixed-size chunks with overlap.
// Splitting is deterministic: identical input and configuration always yield
// the identical chunk sequence.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given maximum chunk size and overlap, in
// bytes of normalized text. Non-positive values fall back to defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks the pages of a document. Chunks never cross page boundaries,
// so each chunk carries an exact page number for citation. Sequence indexes
// run across the whole document in page order. Pages with no extractable
// text produce no chunks; an entirely empty document yields a nil slice.
func (c *Chunker) Split(sourceDocument string, pages []extract.Page) []Chunk {
	var chunks []Chunk
	seq := 0
	for _, page := range pages {
		for _, text := range c.splitText(normalize(page.Text)) {
			chunks = append(chunks, Chunk{
				Text:           text,
				SourceDocument: sourceDocument,
				PageNumber:     page.Number,
				SequenceIndex:  seq,
			})
			seq++
		}
	}
	return chunks
}

// splitText cuts normalized text into pieces of at most c.size bytes,
// preferring a sentence break within the final third of the window over a
// hard cut, with c.overlap bytes carried into the next piece.
func (c *Chunker) splitText(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.breakPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(text) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		// Never start mid-rune.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return pieces
}

// breakPoint returns the cut position for a chunk spanning [start, hardEnd).
// It searches backward from hardEnd for a sentence terminator, giving up
// after a third of the chunk size and falling back to a rune-aligned hard cut.
func (c *Chunker) breakPoint(text string, start, hardEnd int) int {
	tolerance := c.size / 3
	limit := hardEnd - tolerance
	if limit < start {
		limit = start
	}
	for i := hardEnd - 1; i > limit; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	for hardEnd > start && !utf8.RuneStart(text[hardEnd]) {
		hardEnd--
	}
	return hardEnd
}

// normalize collapses runs of whitespace to single spaces so chunk boundaries
// don't depend on the PDF extractor's incidental line breaks.
func normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	prevSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !prevSpace {
				sb.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		sb.WriteRune(r)
		prevSpace = false
	}
	return sb.String()
}
