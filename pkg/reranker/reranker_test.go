package reranker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/ranker"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
)

var logger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

type fixedScorer struct {
	prob []float64
	err  error
}

func (s fixedScorer) Predict(_ []float64) ([]float64, error) {
	return s.prob, s.err
}

func (s fixedScorer) NumClass() int {
	return len(s.prob)
}

func ranking(ids ...int64) ranker.Ranking {
	r := ranker.Ranking{IDs: ids, Distances: make([]float64, len(ids))}
	for i := range ids {
		r.Distances[i] = float64(i) / 10
	}
	return r
}

func TestTopK(t *testing.T) {
	tests := []struct {
		name string
		prob []float64
		k    int
		want []int
	}{
		{"descending", []float64{0.1, 0.5, 0.2, 0.15, 0.05}, 3, []int{1, 2, 3}},
		{"ties take lower index", []float64{0.2, 0.2, 0.2, 0.2, 0.2}, 5, []int{0, 1, 2, 3, 4}},
		{"partial tie", []float64{0.1, 0.3, 0.1, 0.3, 0.2}, 4, []int{1, 3, 4, 0}},
		{"k above length", []float64{0.4, 0.6}, 5, []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopK(tt.prob, tt.k))
		})
	}
}

func TestSelect(t *testing.T) {
	t.Run("maps positions to ids", func(t *testing.T) {
		r := New(fixedScorer{prob: []float64{0.05, 0.4, 0.1, 0.3, 0.1, 0.05}}, 5, 1, logger)
		ids, err := r.Select(ranking(11, 12, 13, 14, 15, 16))
		require.NoError(t, err)
		assert.Equal(t, []int64{12, 14, 13, 15, 11}, ids)
	})

	t.Run("extra classes are ignored", func(t *testing.T) {
		r := New(fixedScorer{prob: []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.5}}, 5, 1, logger)
		ids, err := r.Select(ranking(1, 2, 3, 4, 5))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	})

	t.Run("short ranking", func(t *testing.T) {
		r := New(fixedScorer{prob: []float64{1}}, 5, 1, logger)
		_, err := r.Select(ranking(1, 2))
		assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)
	})

	t.Run("too few classes", func(t *testing.T) {
		r := New(fixedScorer{prob: []float64{0.5, 0.5}}, 5, 1, logger)
		_, err := r.Select(ranking(1, 2, 3, 4, 5))
		assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)
	})

	t.Run("scorer error", func(t *testing.T) {
		boom := errors.New("boom")
		r := New(fixedScorer{err: boom}, 5, 1, logger)
		_, err := r.Select(ranking(1, 2, 3, 4, 5))
		assert.ErrorIs(t, err, boom)
	})
}

func TestSelectAllPreservesOrder(t *testing.T) {
	r := New(fixedScorer{prob: []float64{0.5, 0.2, 0.1, 0.1, 0.1}}, 5, 4, logger)

	var rankings []ranker.Ranking
	for i := int64(0); i < 20; i++ {
		base := i * 10
		rankings = append(rankings, ranking(base+1, base+2, base+3, base+4, base+5))
	}

	out, err := r.SelectAll(context.Background(), rankings)
	require.NoError(t, err)
	require.Len(t, out, 20)
	for i, ids := range out {
		assert.Equal(t, int64(i*10+1), ids[0])
		assert.Len(t, ids, 5)
	}
}

func TestLabelsAndNumClasses(t *testing.T) {
	rankings := []ranker.Ranking{ranking(3, 1, 2), ranking(1, 2, 3), ranking(2, 3, 1)}
	labels, kept, skipped := Labels(rankings, []int64{1, 1, 9})

	assert.Equal(t, []int{1, 0}, labels)
	assert.Equal(t, []int{0, 1}, kept)
	assert.Equal(t, []int{2}, skipped)

	assert.Equal(t, 5, NumClasses([]int{0, 1}, 5, 10))
	assert.Equal(t, 8, NumClasses([]int{7, 1}, 5, 10))
	assert.Equal(t, 10, NumClasses([]int{12}, 5, 10))
}

func TestTrain(t *testing.T) {
	ids := []int64{101, 102, 103, 104, 105, 106}

	var rankings []ranker.Ranking
	var truth []int64
	for i := 0; i < 40; i++ {
		r := ranker.Ranking{IDs: make([]int64, len(ids)), Distances: make([]float64, len(ids))}
		for j := range ids {
			r.IDs[j] = ids[(i+j)%len(ids)]
			r.Distances[j] = 0.2 + 0.1*float64(j) + 0.001*float64(i%7)
		}
		rankings = append(rankings, r)
		truth = append(truth, r.IDs[0])
	}

	params := gbdt.DefaultParams()
	params.NumRounds = 20
	params.LearningRate = 0.2
	model, err := Train(context.Background(), rankings, truth, 5, params, logger)
	require.NoError(t, err)
	assert.Equal(t, 5, model.NumClass)

	r := New(ModelScorer{Model: model}, 5, 2, logger)
	selected, err := r.Select(rankings[3])
	require.NoError(t, err)
	assert.Equal(t, truth[3], selected[0])
	assert.Len(t, selected, 5)
}

func TestTrainPreconditions(t *testing.T) {
	params := gbdt.DefaultParams()

	_, err := Train(context.Background(), nil, nil, 5, params, logger)
	assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)

	_, err = Train(context.Background(), []ranker.Ranking{ranking(1, 2, 3)}, []int64{1}, 5, params, logger)
	assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)

	_, err = Train(context.Background(), []ranker.Ranking{ranking(1, 2, 3, 4, 5)}, []int64{9}, 5, params, logger)
	assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)

	_, err = Train(context.Background(), []ranker.Ranking{ranking(1, 2, 3, 4, 5)}, []int64{1, 2}, 5, params, logger)
	assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)
}

func TestLoadLightGBMMissingFile(t *testing.T) {
	_, err := LoadLightGBM(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, fernerrors.ErrModelUnavailable)
}
