// Package chunker splits documents into overlapping fixed-size windows.
//
// Sizes and offsets are measured in runes, so a window never splits a
// multi-byte character. Chunks of one document satisfy two laws:
//
//   - Count(len, p) chunks are produced for a text of len runes.
//   - Reassemble(chunks, p.Overlap) returns the original text.
package chunker

import (
	"fmt"
	"iter"
	"maps"
)

// Defaults used when a caller does not pick its own window.
const (
	DefaultSize    = 800
	DefaultOverlap = 200
)

// Metadata keys set on every chunk.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
)

// Params is the sliding window shape.
type Params struct {
	Size    int
	Overlap int
}

// DefaultParams returns the default window.
func DefaultParams() Params {
	return Params{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate checks 0 <= Overlap < Size.
func (p Params) Validate() error {
	switch {
	case p.Size <= 0:
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunkParams, p.Size)
	case p.Overlap < 0:
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidChunkParams, p.Overlap)
	case p.Overlap >= p.Size:
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			ErrInvalidChunkParams, p.Overlap, p.Size)
	}
	return nil
}

func (p Params) step() int { return p.Size - p.Overlap }

// Document is a unit of source text.
type Document struct {
	Source   string
	Text     string
	Metadata map[string]any
}

// Chunk is one window of a document. Start and End are rune offsets.
type Chunk struct {
	ID       string
	Index    int
	Count    int
	Start    int
	End      int
	Text     string
	Metadata map[string]any
}

// ChunkID returns the id of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s::chunk-%d", source, index)
}

// Count returns how many chunks a text of length runes produces:
// zero for empty text, otherwise max(1, ceil((length-Overlap)/(Size-Overlap))).
func Count(length int, p Params) int {
	if length <= 0 {
		return 0
	}
	n := length - p.Overlap
	if n <= 0 {
		return 1
	}
	step := p.step()
	return (n + step - 1) / step
}

// Split validates p and returns the chunks of doc. The sequence is lazy
// and may be ranged over more than once.
func Split(doc Document, p Params) (iter.Seq[Chunk], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(doc.Text)
	total := Count(len(runes), p)

	return func(yield func(Chunk) bool) {
		start := 0
		for i := range total {
			end := min(start+p.Size, len(runes))
			c := Chunk{
				ID:       ChunkID(doc.Source, i),
				Index:    i,
				Count:    total,
				Start:    start,
				End:      end,
				Text:     string(runes[start:end]),
				Metadata: chunkMetadata(doc, i, total),
			}
			if !yield(c) {
				return
			}
			start += p.step()
		}
	}, nil
}

// Collect splits doc and returns all chunks at once.
func Collect(doc Document, p Params) ([]Chunk, error) {
	seq, err := Split(doc, p)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, Count(len([]rune(doc.Text)), p))
	for c := range seq {
		out = append(out, c)
	}
	return out, nil
}

// Reassemble joins chunks produced with the given overlap back into the source text.
func Reassemble(chunks []Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}

// chunkMetadata layers the chunk's own keys over the document metadata.
func chunkMetadata(doc Document, index, count int) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+3)
	maps.Copy(meta, doc.Metadata)
	meta[MetaSource] = doc.Source
	meta[MetaChunkIndex] = index
	meta[MetaChunkCount] = count
	return meta
}
