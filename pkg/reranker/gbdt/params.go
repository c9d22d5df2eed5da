// Package gbdt trains and evaluates multiclass gradient boosted decision trees with a softmax
// objective. Trees are grown leaf-wise over histogram-binned features.
package gbdt

// Params are the boosting hyperparameters.
type Params struct {
	NumClass           int     `json:"num_class"`
	NumRounds          int     `json:"num_rounds"`
	LearningRate       float64 `json:"learning_rate"`
	MaxDepth           int     `json:"max_depth"`
	NumLeaves          int     `json:"num_leaves"`
	MinDataInLeaf      int     `json:"min_data_in_leaf"`
	MinSumHessian      float64 `json:"min_sum_hessian_in_leaf"`
	FeatureFraction    float64 `json:"feature_fraction"`
	BaggingFraction    float64 `json:"bagging_fraction"`
	BaggingFreq        int     `json:"bagging_freq"`
	Lambda             float64 `json:"lambda_l2"`
	MaxBin             int     `json:"max_bin"`
	ValidationFraction float64 `json:"validation_fraction"`
	Seed               int64   `json:"seed"`
}

// DefaultParams returns the hyperparameters the reranker is trained with.
func DefaultParams() Params {
	return Params{
		NumRounds:          100,
		LearningRate:       0.01,
		MaxDepth:           15,
		NumLeaves:          17,
		MinDataInLeaf:      1,
		MinSumHessian:      1e-3,
		FeatureFraction:    0.4,
		BaggingFraction:    0.6,
		BaggingFreq:        17,
		Lambda:             0,
		MaxBin:             255,
		ValidationFraction: 0.25,
		Seed:               42,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.NumRounds <= 0 {
		p.NumRounds = d.NumRounds
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.NumLeaves < 2 {
		p.NumLeaves = d.NumLeaves
	}
	if p.MinDataInLeaf < 1 {
		p.MinDataInLeaf = 1
	}
	if p.MinSumHessian <= 0 {
		p.MinSumHessian = d.MinSumHessian
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		p.FeatureFraction = 1
	}
	if p.BaggingFraction <= 0 || p.BaggingFraction > 1 {
		p.BaggingFraction = 1
	}
	if p.MaxBin < 2 || p.MaxBin > 255 {
		p.MaxBin = d.MaxBin
	}
	if p.ValidationFraction < 0 || p.ValidationFraction >= 1 {
		p.ValidationFraction = 0
	}
	return p
}
