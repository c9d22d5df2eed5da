package reranker

import (
	"context"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/ranker"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
)

// Labels returns, per ranking, the rank position of its true catalog id.
// Rankings whose true id is not in the catalog are reported in skipped and get no label.
func Labels(rankings []ranker.Ranking, trueIDs []int64) (labels []int, kept []int, skipped []int) {
	for i, r := range rankings {
		pos := r.Position(trueIDs[i])
		if pos < 0 {
			skipped = append(skipped, i)
			continue
		}
		labels = append(labels, pos)
		kept = append(kept, i)
	}
	return labels, kept, skipped
}

// NumClasses is max(k, highest label + 1), capped at the catalog size.
func NumClasses(labels []int, k, catalogSize int) int {
	n := k
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	return min(n, catalogSize)
}

// Train fits the rank position classifier on training listings' rankings.
func Train(ctx context.Context, rankings []ranker.Ranking, trueIDs []int64, k int, params gbdt.Params, logger ectologger.Logger) (*gbdt.Model, error) {
	if len(rankings) != len(trueIDs) {
		return nil, fernerrors.DataConsistency("got %d rankings for %d training links", len(rankings), len(trueIDs))
	}
	if len(rankings) == 0 {
		return nil, fernerrors.DataConsistency("no training listings with a linked catalog item")
	}
	catalogSize := len(rankings[0].IDs)
	if catalogSize < k {
		return nil, fernerrors.DataConsistency("catalog has %d eligible items, need at least %d", catalogSize, k)
	}

	labels, kept, skipped := Labels(rankings, trueIDs)
	if len(skipped) > 0 {
		logger.WithContext(ctx).WithField("skipped", len(skipped)).Warn("Training links point outside the eligible catalog")
	}
	if len(labels) == 0 {
		return nil, fernerrors.DataConsistency("no training link matches an eligible catalog item")
	}

	features := make([][]float64, len(kept))
	for i, idx := range kept {
		features[i] = rankings[idx].Distances
	}

	params.NumClass = NumClasses(labels, k, catalogSize)
	return gbdt.Train(ctx, features, labels, params, logger)
}
