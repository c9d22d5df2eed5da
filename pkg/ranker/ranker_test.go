package ranker

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for j := range out[i] {
			out[i][j] = r.Float32()*2 - 1
		}
	}
	return out
}

func TestNewIndex(t *testing.T) {
	tests := []struct {
		name    string
		ids     []int64
		vectors [][]float32
		wantErr bool
	}{
		{"ok", []int64{1, 2}, [][]float32{{0, 1}, {1, 0}}, false},
		{"length mismatch", []int64{1}, [][]float32{{0, 1}, {1, 0}}, true},
		{"empty", nil, nil, true},
		{"ragged", []int64{1, 2}, [][]float32{{0, 1}, {1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := NewIndex(tt.ids, tt.vectors)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.ids), ix.Len())
			assert.Equal(t, 2, ix.Dimension())
		})
	}
}

func TestRank(t *testing.T) {
	ix, err := NewIndex([]int64{10, 20, 30}, [][]float32{{3, 0}, {1, 0}, {2, 0}})
	require.NoError(t, err)

	r, err := ix.Rank([]float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30, 10}, r.IDs)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, r.Distances, 1e-9)
	assert.Equal(t, 1, r.Position(30))
	assert.Equal(t, -1, r.Position(99))

	_, err = ix.Rank([]float32{0})
	assert.Error(t, err)
}

func TestRankTiesKeepCatalogOrder(t *testing.T) {
	ix, err := NewIndex([]int64{7, 3, 5, 1}, [][]float32{{1, 0}, {0, 1}, {1, 0}, {0, 1}})
	require.NoError(t, err)

	direct, err := ix.Rank([]float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 3, 5, 1}, direct.IDs)

	all, err := ix.RankAll(context.Background(), [][]float32{{1, 0}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 5, 3, 1}, all[0].IDs)
}

func TestRankAllMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	catalog := randomVectors(r, 40, 16)
	ids := make([]int64, len(catalog))
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	ix, err := NewIndex(ids, catalog)
	require.NoError(t, err)

	queries := randomVectors(r, 25, 16)
	all, err := ix.RankAll(context.Background(), queries, 4)
	require.NoError(t, err)
	require.Len(t, all, len(queries))

	for i, q := range queries {
		want, err := ix.Rank(q)
		require.NoError(t, err)

		got := all[i]
		assert.Equal(t, want.IDs, got.IDs, "query %d", i)
		assert.InDeltaSlice(t, want.Distances, got.Distances, 1e-4, "query %d", i)

		for j := 1; j < len(got.Distances); j++ {
			assert.LessOrEqual(t, got.Distances[j-1], got.Distances[j])
		}
		assert.ElementsMatch(t, ids, got.IDs)
	}
}

func TestRankAllEmptyAndCancelled(t *testing.T) {
	ix, err := NewIndex([]int64{1}, [][]float32{{1}})
	require.NoError(t, err)

	out, err := ix.RankAll(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Nil(t, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.RankAll(ctx, [][]float32{{1}}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
