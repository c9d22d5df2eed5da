package gbdt

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

// separable returns rows whose first feature alone decides the class.
func separable(n, classes int, seed int64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		c := i % classes
		x[i] = []float64{float64(c) + 0.1 + 0.8*r.Float64(), r.Float64(), r.Float64()}
		y[i] = c
	}
	return x, y
}

func argmax(p []float64) int {
	best := 0
	for i := range p {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func fastParams(classes int) Params {
	p := DefaultParams()
	p.NumClass = classes
	p.NumRounds = 30
	p.LearningRate = 0.3
	p.FeatureFraction = 1
	p.BaggingFraction = 1
	return p
}

func TestTrainSeparable(t *testing.T) {
	x, y := separable(90, 3, 1)

	model, err := Train(context.Background(), x, y, fastParams(3), logger)
	require.NoError(t, err)

	assert.Equal(t, 3, model.NumClass)
	assert.Equal(t, 3, model.NumFeature)
	assert.Equal(t, 30, model.NumRounds())
	require.Len(t, model.ValidLoss, 30)
	assert.Less(t, model.ValidLoss[29], model.ValidLoss[0])
	assert.GreaterOrEqual(t, model.BestIteration, 1)
	assert.LessOrEqual(t, model.BestIteration, 30)

	for i := range x {
		prob, err := model.Predict(x[i])
		require.NoError(t, err)
		assert.Equal(t, y[i], argmax(prob), "row %d", i)

		var sum float64
		for _, v := range prob {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestTrainDefaultParams(t *testing.T) {
	x, y := separable(40, 5, 2)
	p := DefaultParams()
	p.NumClass = 5

	model, err := Train(context.Background(), x, y, p, logger)
	require.NoError(t, err)

	assert.Equal(t, 100, model.NumRounds())
	assert.Len(t, model.ValidLoss, 100)
	assert.Len(t, model.TrainLoss, 100)
	for _, round := range model.Trees {
		require.Len(t, round, 5)
		for _, tree := range round {
			assert.LessOrEqual(t, tree.NumLeaves(), 17)
		}
	}
}

func TestTrainSingleRow(t *testing.T) {
	p := DefaultParams()
	p.NumClass = 5

	model, err := Train(context.Background(), [][]float64{{0.1, 0.4, 0.5, 0.9, 1.2}}, []int{0}, p, logger)
	require.NoError(t, err)
	assert.Empty(t, model.ValidLoss)

	prob, err := model.Predict([]float64{0.2, 0.3, 0.6, 0.7, 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0, argmax(prob))
}

func TestTrainDeterministic(t *testing.T) {
	x, y := separable(60, 3, 3)
	p := DefaultParams()
	p.NumClass = 3
	p.NumRounds = 10

	a, err := Train(context.Background(), x, y, p, logger)
	require.NoError(t, err)
	b, err := Train(context.Background(), x, y, p, logger)
	require.NoError(t, err)

	pa, _ := a.Predict(x[7])
	pb, _ := b.Predict(x[7])
	assert.Equal(t, pa, pb)
}

func TestTrainErrors(t *testing.T) {
	tests := []struct {
		name  string
		x     [][]float64
		y     []int
		class int
	}{
		{"label count mismatch", [][]float64{{1}}, []int{0, 1}, 2},
		{"too few classes", [][]float64{{1}}, []int{0}, 1},
		{"label out of range", [][]float64{{1}, {2}}, []int{0, 2}, 2},
		{"ragged rows", [][]float64{{1}, {2, 3}}, []int{0, 1}, 2},
		{"no rows", nil, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			p.NumClass = tt.class
			_, err := Train(context.Background(), tt.x, tt.y, p, logger)
			assert.Error(t, err)
		})
	}
}

func TestTrainCancelled(t *testing.T) {
	x, y := separable(20, 2, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Train(ctx, x, y, fastParams(2), logger)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelJSON(t *testing.T) {
	x, y := separable(45, 3, 5)
	model, err := Train(context.Background(), x, y, fastParams(3), logger)
	require.NoError(t, err)

	raw, err := json.Marshal(model)
	require.NoError(t, err)
	var decoded Model
	require.NoError(t, json.Unmarshal(raw, &decoded))

	want, err := model.Predict(x[0])
	require.NoError(t, err)
	got, err := decoded.Predict(x[0])
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	_, err = decoded.Predict([]float64{1})
	assert.Error(t, err)
}

func TestBinThresholds(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		maxBin int
		want   []float64
	}{
		{"constant", []float64{2, 2, 2}, 255, nil},
		{"few distinct", []float64{3, 1, 2, 1}, 255, []float64{1.5, 2.5}},
		{"quantiles", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 4, []float64{2.5, 4.5, 6.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, binThresholds(tt.values, tt.maxBin))
		})
	}

	thresholds := []float64{1, 2}
	assert.Equal(t, 0, binOf(thresholds, 0.5))
	assert.Equal(t, 0, binOf(thresholds, 1))
	assert.Equal(t, 1, binOf(thresholds, 1.5))
	assert.Equal(t, 2, binOf(thresholds, 9))
}
