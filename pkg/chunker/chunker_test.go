package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "defaults", params: DefaultParams()},
		{name: "no overlap", params: Params{Size: 10}},
		{name: "zero size", params: Params{Size: 0}, wantErr: true},
		{name: "negative overlap", params: Params{Size: 10, Overlap: -1}, wantErr: true},
		{name: "overlap equals size", params: Params{Size: 10, Overlap: 10}, wantErr: true},
		{name: "overlap exceeds size", params: Params{Size: 10, Overlap: 11}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidChunkParams)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplit_ThousandRunes(t *testing.T) {
	t.Parallel()

	doc := Document{Source: "a.txt", Text: strings.Repeat("A", 1000)}
	chunks, err := Collect(doc, Params{Size: 400, Overlap: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, []int{400, 400, 300}, []int{len(chunks[0].Text), len(chunks[1].Text), len(chunks[2].Text)})
	assert.Equal(t, 350, chunks[1].Start)
	assert.Equal(t, 1000, chunks[2].End)
	assert.Equal(t, "a.txt::chunk-2", chunks[2].ID)
	assert.Equal(t, doc.Text, Reassemble(chunks, 50))
}

func TestSplit_CountAndRoundTrip(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("héllo wörld, ", 40) + "日本語のテキスト"
	runes := []rune(text)

	for size := 1; size <= 60; size += 7 {
		for overlap := 0; overlap < size; overlap += 3 {
			for _, length := range []int{0, 1, overlap, size, size + 1, len(runes)} {
				p := Params{Size: size, Overlap: overlap}
				doc := Document{Source: "s", Text: string(runes[:min(length, len(runes))])}

				chunks, err := Collect(doc, p)
				require.NoError(t, err)

				n := len([]rune(doc.Text))
				assert.Len(t, chunks, Count(n, p), "size=%d overlap=%d len=%d", size, overlap, n)
				assert.Equal(t, doc.Text, Reassemble(chunks, overlap), "size=%d overlap=%d len=%d", size, overlap, n)
				for _, c := range chunks {
					assert.LessOrEqual(t, len([]rune(c.Text)), size)
					assert.Equal(t, len(chunks), c.Count)
				}
			}
		}
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	p := Params{Size: 400, Overlap: 50}
	assert.Equal(t, 0, Count(0, p))
	assert.Equal(t, 1, Count(1, p))
	assert.Equal(t, 1, Count(50, p))
	assert.Equal(t, 1, Count(400, p))
	assert.Equal(t, 2, Count(401, p))
	assert.Equal(t, 3, Count(1000, p))
}

func TestSplit_EmptyText(t *testing.T) {
	t.Parallel()

	chunks, err := Collect(Document{Source: "empty"}, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_InvalidParams(t *testing.T) {
	t.Parallel()

	_, err := Split(Document{Text: "x"}, Params{Size: 5, Overlap: 5})
	require.ErrorIs(t, err, ErrInvalidChunkParams)
}

func TestSplit_LazyAndRestartable(t *testing.T) {
	t.Parallel()

	seq, err := Split(Document{Source: "s", Text: strings.Repeat("x", 100)}, Params{Size: 10})
	require.NoError(t, err)

	var first []int
	for c := range seq {
		first = append(first, c.Index)
		if c.Index == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, first)

	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 10, n)
}

func TestSplit_Metadata(t *testing.T) {
	t.Parallel()

	doc := Document{
		Source:   "notes.md",
		Text:     "abcdef",
		Metadata: map[string]any{"author": "kim", "source": "ignored", "chunk_index": 99},
	}
	chunks, err := Collect(doc, Params{Size: 4, Overlap: 1})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for i, c := range chunks {
		assert.Equal(t, "kim", c.Metadata["author"])
		assert.Equal(t, "notes.md", c.Metadata[MetaSource])
		assert.Equal(t, i, c.Metadata[MetaChunkIndex])
		assert.Equal(t, 2, c.Metadata[MetaChunkCount])
	}
	// the document metadata is not modified
	assert.Equal(t, 99, doc.Metadata["chunk_index"])
}
