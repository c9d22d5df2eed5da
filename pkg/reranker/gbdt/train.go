package gbdt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/Gobusters/ectologger"
)

// Train fits a softmax booster on rows x with class labels y in [0, params.NumClass).
// A seeded share of rows is held out to track multi_logloss; the full round count is always kept.
func Train(ctx context.Context, x [][]float64, y []int, params Params, logger ectologger.Logger) (*Model, error) {
	p := params.withDefaults()
	if len(x) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("got %d rows and %d labels", len(x), len(y))
	}
	if p.NumClass < 2 {
		return nil, fmt.Errorf("num_class must be at least 2, got %d", p.NumClass)
	}
	for i, label := range y {
		if label < 0 || label >= p.NumClass {
			return nil, fmt.Errorf("label %d of row %d is outside [0, %d)", label, i, p.NumClass)
		}
	}

	rng := rand.New(rand.NewSource(p.Seed))
	trainIdx, validIdx := splitRows(len(x), p.ValidationFraction, rng)

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]int, len(trainIdx))
	for i, r := range trainIdx {
		trainX[i] = x[r]
		trainY[i] = y[r]
	}

	data, err := newDataset(trainX, p.MaxBin)
	if err != nil {
		return nil, err
	}
	numFeature := len(trainX[0])
	n, k := len(trainX), p.NumClass

	model := &Model{
		NumClass:   k,
		NumFeature: numFeature,
		InitScores: logPriors(trainY, k),
		Params:     p,
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), model.InitScores...)
	}
	validScores := make([][]float64, len(validIdx))
	for i := range validScores {
		validScores[i] = append([]float64(nil), model.InitScores...)
	}

	grad := make([][]float64, k)
	hess := make([][]float64, k)
	for c := 0; c < k; c++ {
		grad[c] = make([]float64, n)
		hess[c] = make([]float64, n)
	}
	prob := make([]float64, k)
	factor := float64(k) / float64(k-1)

	allRows := make([]int, n)
	for i := range allRows {
		allRows[i] = i
	}
	bag := allRows

	bestLoss := math.Inf(1)
	for round := 0; round < p.NumRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.BaggingFraction < 1 && p.BaggingFreq > 0 && round%p.BaggingFreq == 0 {
			bag = sampleRows(n, p.BaggingFraction, rng)
		}

		var trainLoss float64
		for i := 0; i < n; i++ {
			copy(prob, scores[i])
			softmax(prob)
			trainLoss += logLoss(prob, trainY[i])
			for c := 0; c < k; c++ {
				target := 0.0
				if trainY[i] == c {
					target = 1
				}
				grad[c][i] = prob[c] - target
				hess[c][i] = factor * prob[c] * (1 - prob[c])
			}
		}
		model.TrainLoss = append(model.TrainLoss, trainLoss/float64(n))

		trees := make([]Tree, k)
		for c := 0; c < k; c++ {
			features := sampleFeatures(numFeature, p.FeatureFraction, rng)
			tree := newTreeBuilder(data, grad[c], hess[c], features, p).build(bag)
			trees[c] = *tree
			for i := 0; i < n; i++ {
				scores[i][c] += tree.predictBinned(data, i)
			}
			for i, r := range validIdx {
				validScores[i][c] += tree.Predict(x[r])
			}
		}
		model.Trees = append(model.Trees, trees)

		if len(validIdx) > 0 {
			var loss float64
			for i, r := range validIdx {
				copy(prob, validScores[i])
				softmax(prob)
				loss += logLoss(prob, y[r])
			}
			loss /= float64(len(validIdx))
			model.ValidLoss = append(model.ValidLoss, loss)
			if loss < bestLoss {
				bestLoss = loss
				model.BestIteration = round + 1
			}
		}

		if (round+1)%10 == 0 {
			fields := map[string]any{"round": round + 1, "train_multi_logloss": model.TrainLoss[round]}
			if len(model.ValidLoss) > 0 {
				fields["valid_multi_logloss"] = model.ValidLoss[round]
			}
			logger.WithContext(ctx).WithFields(fields).Debug("Boosting round completed")
		}
	}

	if model.BestIteration == 0 {
		model.BestIteration = p.NumRounds
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"rows":           n,
		"validation":     len(validIdx),
		"features":       numFeature,
		"classes":        k,
		"rounds":         p.NumRounds,
		"best_iteration": model.BestIteration,
	}).Info("Trained reranker model")

	return model, nil
}

// logPriors starts every class at the log of its smoothed frequency.
func logPriors(y []int, k int) []float64 {
	counts := make([]float64, k)
	for _, label := range y {
		counts[label]++
	}
	out := make([]float64, k)
	total := float64(len(y) + k)
	for c := range out {
		out[c] = math.Log((counts[c] + 1) / total)
	}
	return out
}

// splitRows shuffles row indexes with rng and holds out a fraction for validation.
// At least one row always stays in training.
func splitRows(n int, fraction float64, rng *rand.Rand) (train, valid []int) {
	perm := rng.Perm(n)
	nValid := int(float64(n) * fraction)
	if nValid >= n {
		nValid = n - 1
	}
	valid = append([]int(nil), perm[:nValid]...)
	train = append([]int(nil), perm[nValid:]...)
	sort.Ints(valid)
	sort.Ints(train)
	return train, valid
}

func sampleRows(n int, fraction float64, rng *rand.Rand) []int {
	m := max(1, int(float64(n)*fraction))
	rows := rng.Perm(n)[:m]
	sort.Ints(rows)
	return rows
}

func sampleFeatures(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return sampleRows(n, fraction, rng)
}
