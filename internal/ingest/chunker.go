package ingest

import (
	"github.com/google/uuid"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 80
)

// separatorGroups lists split boundaries from largest to smallest. Separators
// in the same group share a priority. When no group matches inside the
// window the chunk is cut at exactly chunkSize characters.
var separatorGroups = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// Chunker splits provisional documents into bounded, overlapping chunks.
//
// Lengths are counted in characters (runes). A document that fits in one
// chunk is emitted unmodified. Otherwise the chunker fills greedily: from the
// current start it looks at the window (start+overlap, start+chunkSize] and
// cuts right after the last occurrence of the highest-priority separator found
// there. The next chunk begins overlap characters before that cut, so
// neighbours share exactly overlap characters and dropping that prefix from
// every chunk after the first reproduces the source text.
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets how many characters consecutive chunks share.
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Chunk splits every document and gives each piece a fresh identifier and a
// copy of the document's provenance and ownership fields.
func (c *Chunker) Chunk(docs []model.ProvisionalDocument) []model.Chunk {
	var chunks []model.Chunk
	for _, doc := range docs {
		for _, text := range c.Split(doc.Content) {
			chunks = append(chunks, model.Chunk{
				ID:           uuid.NewString(),
				Content:      text,
				UserID:       doc.UserID,
				DocumentName: doc.DocumentName,
				SourceFile:   doc.SourceFile,
				Provenance:   doc.Provenance,
			})
		}
	}
	return chunks
}

// Split returns the chunk texts for a single document.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	var out []string
	start := 0
	for len(runes)-start > c.chunkSize {
		cut := c.findCut(runes, start)
		out = append(out, string(runes[start:cut]))
		start = cut - c.overlap
	}
	return append(out, string(runes[start:]))
}

// findCut picks the end (exclusive) of the chunk beginning at start. The cut
// always lies past start+overlap so the next start moves forward.
func (c *Chunker) findCut(runes []rune, start int) int {
	lo := start + c.overlap + 1
	hi := start + c.chunkSize
	for _, group := range separatorGroups {
		for cut := hi; cut >= lo; cut-- {
			if endsWithAny(runes[start:cut], group) {
				return cut
			}
		}
	}
	return hi
}

func endsWithAny(runes []rune, seps []string) bool {
	for _, sep := range seps {
		sr := []rune(sep)
		if len(sr) > len(runes) {
			continue
		}
		tail := runes[len(runes)-len(sr):]
		match := true
		for i := range sr {
			if tail[i] != sr[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
