// Package reranker picks the final candidate ids for a listing from its sorted distance profile.
// The model only sees distances, never catalog identities: it predicts which rank positions are
// most likely the true match, and positions are mapped back to ids per listing.
package reranker

import (
	"context"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/dmitryikh/leaves"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/ranker"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
)

// Scorer returns a probability per rank position for one distance profile.
type Scorer interface {
	Predict(features []float64) ([]float64, error)
	NumClass() int
}

// ModelScorer scores with a natively trained booster.
type ModelScorer struct {
	Model *gbdt.Model
}

func (s ModelScorer) Predict(features []float64) ([]float64, error) {
	return s.Model.Predict(features)
}

func (s ModelScorer) NumClass() int {
	return s.Model.NumClass
}

// LightGBMScorer scores with a LightGBM text model trained outside this service.
type LightGBMScorer struct {
	ensemble *leaves.Ensemble
}

func LoadLightGBM(path string) (*LightGBMScorer, error) {
	ensemble, err := leaves.LGEnsembleFromFile(path, true)
	if err != nil {
		return nil, fernerrors.ModelUnavailable(err, "failed to load reranker model %s", path)
	}
	return &LightGBMScorer{ensemble: ensemble}, nil
}

func (s *LightGBMScorer) Predict(features []float64) ([]float64, error) {
	out := make([]float64, s.ensemble.NOutputGroups())
	if err := s.ensemble.Predict(features, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LightGBMScorer) NumClass() int {
	return s.ensemble.NOutputGroups()
}

// NumFeatures is the profile length the LightGBM model was trained on.
func (s *LightGBMScorer) NumFeatures() int {
	return s.ensemble.NFeatures()
}

type Reranker struct {
	scorer  Scorer
	k       int
	workers int
	logger  ectologger.Logger
}

func New(scorer Scorer, k, workers int, logger ectologger.Logger) *Reranker {
	if workers < 1 {
		workers = 1
	}
	return &Reranker{scorer: scorer, k: k, workers: workers, logger: logger}
}

// Select returns the k catalog ids of the most probable rank positions, best first.
func (r *Reranker) Select(ranking ranker.Ranking) ([]int64, error) {
	if len(ranking.IDs) < r.k {
		return nil, fernerrors.DataConsistency("ranking has %d candidates, need at least %d", len(ranking.IDs), r.k)
	}

	prob, err := r.scorer.Predict(ranking.Distances)
	if err != nil {
		return nil, err
	}
	// positions past the ranking cannot be mapped to an id
	if len(prob) > len(ranking.IDs) {
		prob = prob[:len(ranking.IDs)]
	}
	if len(prob) < r.k {
		return nil, fernerrors.DataConsistency("model scores %d positions, need at least %d", len(prob), r.k)
	}

	positions := TopK(prob, r.k)
	ids := make([]int64, len(positions))
	for i, pos := range positions {
		ids[i] = ranking.IDs[pos]
	}
	return ids, nil
}

// SelectAll runs Select over rankings in parallel. Output order matches input order.
func (r *Reranker) SelectAll(ctx context.Context, rankings []ranker.Ranking) ([][]int64, error) {
	out := make([][]int64, len(rankings))
	errs := make([]error, len(rankings))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i], errs[i] = r.Select(rankings[i])
			}
		}()
	}
	for i := range rankings {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Errorf("Failed to rerank ranking %d", i)
			return nil, err
		}
	}
	return out, nil
}

// TopK returns the indexes of the k largest probabilities in descending order.
// Equal probabilities rank the lower index first.
func TopK(prob []float64, k int) []int {
	order := make([]int, len(prob))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return prob[order[a]] > prob[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	return order[:k]
}
