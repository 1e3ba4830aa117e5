package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedded(t *testing.T) *Embedded {
	t.Helper()
	e, err := NewEmbedded(filepath.Join(t.TempDir(), "test.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEmbedded_CreateAndDescribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEmbedded(t)

	created, err := e.CreateIndex(ctx, IndexSpec{Name: "docs", Dimension: 4, EvalMode: EvalModeRMP, QueryEncrypted: true})
	require.NoError(t, err)
	assert.Equal(t, &Index{Name: "docs", Dimension: 4, EvalMode: EvalModeRMP, IndexEncrypted: true, QueryEncrypted: true}, created)

	first, err := e.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	second, err := e.DescribeIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(0), first.RecordCount)

	_, err = e.CreateIndex(ctx, IndexSpec{Name: "docs", Dimension: 4})
	require.ErrorIs(t, err, ErrIndexAlreadyExists)

	_, err = e.CreateIndex(ctx, IndexSpec{Name: "bad", Dimension: 0})
	require.ErrorIs(t, err, ErrInvalidDimension)

	_, err = e.DescribeIndex(ctx, "missing")
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestEmbedded_ListIndexes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEmbedded(t)

	list, err := e.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, name := range []string{"b", "a"} {
		_, err := e.CreateIndex(ctx, IndexSpec{Name: name, Dimension: 2})
		require.NoError(t, err)
	}
	list, err = e.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, EvalModeMM, list[0].EvalMode)
}

func TestEmbedded_InsertAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEmbedded(t)
	_, err := e.CreateIndex(ctx, IndexSpec{Name: "idx", Dimension: 3})
	require.NoError(t, err)

	_, err = e.Insert(ctx, "idx", []Record{
		{ID: "ok", Vector: []float32{1, 0, 0}},
		{ID: "short", Vector: []float32{1, 0}},
		{ID: "long", Vector: []float32{1, 0, 0, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, []int{1, 2}, RejectedRecords(err))

	idx, err := e.DescribeIndex(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx.RecordCount)

	n, err := e.Insert(ctx, "idx", []Record{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	idx, err = e.DescribeIndex(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idx.RecordCount)

	_, err = e.Insert(ctx, "nope", []Record{{Vector: []float32{1}}})
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestEmbedded_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEmbedded(t)
	_, err := e.CreateIndex(ctx, IndexSpec{Name: "idx", Dimension: 2})
	require.NoError(t, err)

	_, err = e.Insert(ctx, "idx", []Record{
		{ID: "x", Vector: []float32{1, 0}, Metadata: map[string]any{"kind": "axis", "n": 1}},
		{ID: "y", Vector: []float32{0, 1}, Metadata: map[string]any{"kind": "axis", "n": 2}},
		{ID: "diag-b", Vector: []float32{1, 1}, Metadata: map[string]any{"kind": "diag"}},
		{ID: "diag-a", Vector: []float32{2, 2}, Metadata: map[string]any{"kind": "diag"}},
	})
	require.NoError(t, err)

	t.Run("top result is the inserted vector", func(t *testing.T) {
		t.Parallel()
		res, err := e.Search(ctx, "idx", []float32{1, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "x", res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.Equal(t, "axis", res[0].Metadata["kind"])
	})

	t.Run("ties broken by id", func(t *testing.T) {
		t.Parallel()
		res, err := e.Search(ctx, "idx", []float32{1, 1}, 10, nil)
		require.NoError(t, err)
		require.Len(t, res, 4)
		assert.Equal(t, "diag-a", res[0].ID)
		assert.Equal(t, "diag-b", res[1].ID)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
		}
	})

	t.Run("top k bound", func(t *testing.T) {
		t.Parallel()
		res, err := e.Search(ctx, "idx", []float32{1, 1}, 3, nil)
		require.NoError(t, err)
		assert.Len(t, res, 3)
	})

	t.Run("filter", func(t *testing.T) {
		t.Parallel()
		res, err := e.Search(ctx, "idx", []float32{1, 1}, 10, Filter{"kind": "axis", "n": 2})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "y", res[0].ID)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		_, err := e.Search(ctx, "idx", []float32{1, 1, 1}, 1, nil)
		require.ErrorIs(t, err, ErrDimensionMismatch)
		_, err = e.Search(ctx, "idx", []float32{1, 1}, 0, nil)
		require.ErrorIs(t, err, ErrInvalidArgument)
		_, err = e.Search(ctx, "missing", []float32{1, 1}, 1, nil)
		require.ErrorIs(t, err, ErrIndexNotFound)
	})
}

func TestEmbedded_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	e, err := NewEmbedded(path, time.Second)
	require.NoError(t, err)
	_, err = e.CreateIndex(ctx, IndexSpec{Name: "idx", Dimension: 2, QueryEncrypted: true})
	require.NoError(t, err)
	_, err = e.Insert(ctx, "idx", []Record{{ID: "a", Vector: []float32{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = NewEmbedded(path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	idx, err := e.DescribeIndex(ctx, "idx")
	require.NoError(t, err)
	assert.True(t, idx.QueryEncrypted)
	assert.Equal(t, uint64(1), idx.RecordCount)
}

func TestCosine(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosine([]float32{0, 0}, []float32{1, 1}))
}
