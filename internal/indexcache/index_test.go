package indexcache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

func records(docID string, n int) []domain.ChunkRecord {
	out := make([]domain.ChunkRecord, n)
	for i := range out {
		out[i] = domain.ChunkRecord{
			Text:       docID + " chunk",
			Metadata:   map[string]any{"filename": docID + ".txt"},
			DocumentID: docID,
			ChunkIndex: i,
		}
	}
	return out
}

func TestNewIndex_RejectsBadDimension(t *testing.T) {
	_, err := NewIndex(0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_AppendAndSearch(t *testing.T) {
	ctx := context.Background()
	ix, err := NewIndex(3)
	require.NoError(t, err)

	vecs := [][]float32{{0.1, 0, 0}, {0.2, 0.1, 0}, {0, 0, 1}}
	require.NoError(t, ix.Append(ctx, vecs, records("doc", 3)))
	assert.Equal(t, 3, ix.Len())

	hits, err := ix.Search(ctx, []float32{0.1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3, "k is capped at the row count")
	assert.Equal(t, 0, hits[0].Row)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.Equal(t, 1, hits[1].Row)
	assert.Equal(t, 2, hits[2].Row)
	assert.InDelta(t, 1, hits[2].Distance, 1e-5, "orthogonal vectors")
}

func TestIndex_AppendValidatesBeforeMutating(t *testing.T) {
	ctx := context.Background()
	ix, err := NewIndex(3)
	require.NoError(t, err)
	require.NoError(t, ix.Append(ctx, [][]float32{{1, 0, 0}}, records("a", 1)))

	tests := []struct {
		name    string
		vectors [][]float32
		records []domain.ChunkRecord
		want    error
	}{
		{"dimension", [][]float32{{1, 0, 0}, {1, 0}}, records("b", 2), domain.ErrDimensionMismatch},
		{"count", [][]float32{{1, 0, 0}}, records("b", 2), domain.ErrInvalidInput},
		{"zero vector", [][]float32{{0, 1, 0}, {0, 0, 0}}, records("b", 2), domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ix.Append(ctx, tt.vectors, tt.records)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, ix.Len())
		})
	}

	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, ix.Append(ctx, [][]float32{{1, 2}}, records("c", 1)), &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Got)
}

func TestIndex_SearchEmpty(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	hits, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchDimensionMismatch(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	_, err = ix.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_MarshalRoundTrip(t *testing.T) {
	ctx := context.Background()
	ix, err := NewIndex(3)
	require.NoError(t, err)
	require.NoError(t, ix.Append(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}}, records("doc", 2)))

	index, meta, err := ix.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalIndex(index, meta)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Dim())
	assert.Equal(t, ix.Records(), back.Records())

	hits, err := back.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Row)

	// Appends continue the positional ids after a reload.
	require.NoError(t, back.Append(ctx, [][]float32{{0, 0, 1}}, records("more", 1)))
	hits, err = back.Search(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, hits[0].Row)
}

func TestIndex_EmptyRoundTrip(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	index, meta, err := ix.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalIndex(index, meta)
	require.NoError(t, err)
	require.NoError(t, back.Append(context.Background(), [][]float32{{1, 1}}, records("a", 1)))
	assert.Equal(t, 1, back.Len())
}

func TestUnmarshalIndex_BadMeta(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	index, _, err := ix.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalIndex(index, []byte("{"))
	require.Error(t, err)

	bad, _ := json.Marshal(meta{Dimension: 0})
	_, err = UnmarshalIndex(index, bad)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_Release(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	require.NoError(t, ix.Append(context.Background(), [][]float32{{1, 0}}, records("a", 1)))

	ix.Release()
	ix.Release()
	assert.True(t, ix.Released())

	_, err = ix.Search(context.Background(), []float32{1, 0}, 1)
	require.ErrorIs(t, err, domain.ErrIndexReleased)
	_, _, err = ix.Marshal()
	require.ErrorIs(t, err, domain.ErrIndexReleased)
	require.ErrorIs(t, ix.Append(context.Background(), [][]float32{{1, 0}}, records("b", 1)), domain.ErrIndexReleased)
}
