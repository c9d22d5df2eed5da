package gbdt

import (
	"fmt"
	"math"
)

// Model is a trained softmax booster. Trees[round][class] holds one tree per class per round.
type Model struct {
	NumClass      int       `json:"num_class"`
	NumFeature    int       `json:"num_feature"`
	InitScores    []float64 `json:"init_scores"`
	Trees         [][]Tree  `json:"trees"`
	BestIteration int       `json:"best_iteration"`
	ValidLoss     []float64 `json:"valid_loss,omitempty"`
	TrainLoss     []float64 `json:"train_loss,omitempty"`
	Params        Params    `json:"params"`
}

// PredictRaw returns the per-class raw scores for x.
func (m *Model) PredictRaw(x []float64) ([]float64, error) {
	if len(x) != m.NumFeature {
		return nil, fmt.Errorf("got %d features, model expects %d", len(x), m.NumFeature)
	}
	scores := append([]float64(nil), m.InitScores...)
	for _, round := range m.Trees {
		for k := range round {
			scores[k] += round[k].Predict(x)
		}
	}
	return scores, nil
}

// Predict returns class probabilities for x.
func (m *Model) Predict(x []float64) ([]float64, error) {
	scores, err := m.PredictRaw(x)
	if err != nil {
		return nil, err
	}
	softmax(scores)
	return scores, nil
}

func (m *Model) NumRounds() int {
	return len(m.Trees)
}

// softmax rewrites scores as probabilities in place.
func softmax(scores []float64) {
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	var sum float64
	for i, s := range scores {
		scores[i] = math.Exp(s - max)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
}

func logLoss(prob []float64, label int) float64 {
	return -math.Log(math.Max(prob[label], 1e-15))
}
