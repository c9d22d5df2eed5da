// Package matching runs the batch that turns unmatched dealer listings into review records:
// normalize, embed, rank against the catalog, rerank to the top K, store.
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/artifact"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/embedding"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
	"github.com/Ramsey-B/fern/pkg/ranker"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/reranker"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const lockKey = "matching:run"

type Config struct {
	K       int
	Workers int
	Params  gbdt.Params
	LockTTL time.Duration
}

// Dependencies are the collaborators of a Pipeline. Scorer and Emitter are optional: without a
// Scorer the pipeline trains its own reranker, without an Emitter no events are published.
type Dependencies struct {
	Catalog    CatalogReader
	Listings   ListingReader
	Links      LinkReader
	Writer     CandidateWriter
	Embedder   embedding.Embedder
	Normalizer *normalizer.Normalizer
	Artifacts  artifact.Store
	Locker     Locker
	Scorer     reranker.Scorer
	Emitter    events.Emitter
}

type Pipeline struct {
	deps   Dependencies
	cfg    Config
	logger ectologger.Logger
	now    func() time.Time
}

func NewPipeline(deps Dependencies, cfg Config, logger ectologger.Logger) *Pipeline {
	if cfg.K <= 0 {
		cfg.K = models.CandidateSetSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = &LocalLocker{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(cfg.Workers)
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger, now: time.Now}
}

func (p *Pipeline) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	err := p.deps.Locker.WithLock(ctx, lockKey, p.cfg.LockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return ErrRunInProgress
	}
	return err
}

// Train rebuilds the catalog matrix and reranker from scratch and overwrites the cached artifact.
func (p *Pipeline) Train(ctx context.Context) (*artifact.Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.Train")
	defer span.End()

	var art *artifact.Artifact
	err := p.withLock(ctx, func(ctx context.Context) error {
		catalog, err := p.eligibleCatalog(ctx)
		if err != nil {
			return err
		}
		art, err = p.train(ctx, catalog)
		return err
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// Run matches every unmatched listing and stores one review record per listing. Either every
// record of the batch is stored or none is. It returns the number of records created.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	batchID := uuid.New().String()
	ctx = fctx.SetBatchID(ctx, batchID)
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.Run")
	defer span.End()

	start := p.now()
	var created, listingCount, catalogSize int
	var retrained bool

	err := p.withLock(ctx, func(ctx context.Context) error {
		catalog, err := p.eligibleCatalog(ctx)
		if err != nil {
			return err
		}
		catalogSize = len(catalog)

		listings, err := p.deps.Listings.ListUnmatched(ctx)
		if err != nil {
			return err
		}
		listingCount = len(listings)
		if len(listings) == 0 {
			p.logger.WithContext(ctx).Info("No unmatched listings")
			return nil
		}

		art, fresh, err := p.ensureArtifact(ctx, catalog)
		if err != nil {
			return err
		}
		retrained = fresh

		sets, err := p.candidates(ctx, art, listings)
		if err != nil {
			return err
		}

		records, err := p.deps.Writer.InsertCandidates(ctx, sets)
		if err != nil {
			return err
		}
		created = len(records)
		return nil
	})

	duration := p.now().Sub(start)
	metrics.MatchingRunDuration.Observe(duration.Seconds())
	if err != nil {
		metrics.MatchingRunsTotal.WithLabelValues("error").Inc()
		p.logger.WithContext(ctx).WithError(err).Error("Matching run failed")
		return 0, err
	}
	metrics.MatchingRunsTotal.WithLabelValues("ok").Inc()
	metrics.RecordsCreatedTotal.Add(float64(created))

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batchID,
		"listings":    listingCount,
		"created":     created,
		"retrained":   retrained,
		"duration_ms": duration.Milliseconds(),
	}).Info("Matching run completed")

	if created > 0 {
		event := events.BatchCompletedEvent{
			BatchID:        batchID,
			Listings:       listingCount,
			RecordsCreated: created,
			DurationMs:     duration.Milliseconds(),
			Retrained:      retrained,
			CatalogSize:    catalogSize,
		}
		if err := p.deps.Emitter.EmitBatchCompleted(ctx, event); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Batch stored but completion event was not published")
		}
	}
	return created, nil
}

// Preview computes candidate sets for the given listings without storing anything.
func (p *Pipeline) Preview(ctx context.Context, listingIDs []int64) ([]models.CandidateSet, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.Preview")
	defer span.End()

	listings, err := p.deps.Listings.GetByIDs(ctx, listingIDs)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, fernerrors.NotFound("none of the %d requested listings exist", len(listingIDs))
	}

	catalog, err := p.eligibleCatalog(ctx)
	if err != nil {
		return nil, err
	}

	var art *artifact.Artifact
	err = p.withLock(ctx, func(ctx context.Context) error {
		art, _, err = p.ensureArtifact(ctx, catalog)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p.candidates(ctx, art, listings)
}

func (p *Pipeline) eligibleCatalog(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := p.deps.Catalog.ListEligible(ctx)
	if err != nil {
		return nil, err
	}

	eligible := items[:0:0]
	for _, item := range items {
		if item.Eligible() {
			eligible = append(eligible, item)
		}
	}
	if len(eligible) < p.cfg.K {
		return nil, fernerrors.DataConsistency("catalog has %d eligible items, need at least %d", len(eligible), p.cfg.K)
	}
	return eligible, nil
}

// ensureArtifact loads the cached artifact, retraining when it is missing, unreadable, or was
// built for another encoder or catalog.
func (p *Pipeline) ensureArtifact(ctx context.Context, catalog []models.CatalogItem) (*artifact.Artifact, bool, error) {
	fingerprint := artifact.Fingerprint(catalog)

	art, err := p.deps.Artifacts.Load(ctx)
	switch {
	case err != nil:
		metrics.ArtifactCacheTotal.WithLabelValues("miss").Inc()
		if err == artifact.ErrCacheMiss {
			p.logger.WithContext(ctx).Info("No cached artifact, training")
		} else {
			p.logger.WithContext(ctx).WithError(err).Warn("Artifact unreadable, retraining")
		}
	case !art.Matches(p.deps.Embedder.ModelID(), fingerprint) || art.K != p.cfg.K:
		metrics.ArtifactCacheTotal.WithLabelValues("stale").Inc()
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"cached_encoder":     art.EncoderID,
			"cached_fingerprint": art.CatalogFingerprint,
			"fingerprint":        fingerprint,
		}).Info("Cached artifact does not match the current catalog or encoder, retraining")
	default:
		metrics.ArtifactCacheTotal.WithLabelValues("hit").Inc()
		return art, false, nil
	}

	art, err = p.train(ctx, catalog)
	if err != nil {
		return nil, false, err
	}
	return art, true, nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	normalized := p.deps.Normalizer.NormalizeAll(texts)

	start := time.Now()
	vectors, err := p.deps.Embedder.Embed(ctx, normalized)
	metrics.EmbeddingBatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fernerrors.DataConsistency("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (p *Pipeline) train(ctx context.Context, catalog []models.CatalogItem) (*artifact.Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.train")
	defer span.End()

	start := time.Now()
	defer func() { metrics.TrainingDuration.Observe(time.Since(start).Seconds()) }()

	ids := ectolinq.Map(catalog, func(item models.CatalogItem) int64 { return item.ID })
	names := ectolinq.Map(catalog, func(item models.CatalogItem) string { return item.Name })

	vectors, err := p.embed(ctx, names)
	if err != nil {
		return nil, err
	}
	index, err := ranker.NewIndex(ids, vectors)
	if err != nil {
		return nil, fernerrors.DataConsistency("failed to index catalog: %v", err)
	}

	art := &artifact.Artifact{
		Version:            artifact.FormatVersion,
		EncoderID:          p.deps.Embedder.ModelID(),
		CatalogFingerprint: artifact.Fingerprint(catalog),
		CatalogIDs:         ids,
		CatalogVectors:     vectors,
		K:                  p.cfg.K,
		TrainedAt:          p.now().UTC(),
	}

	if p.deps.Scorer != nil {
		p.logger.WithContext(ctx).Info("Using external reranker model, skipping reranker training")
	} else {
		model, rows, err := p.trainReranker(ctx, index)
		if err != nil {
			return nil, err
		}
		art.Model = model
		art.TrainingRows = rows
	}

	if err := p.deps.Artifacts.Save(ctx, art); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to cache artifact, it will be rebuilt on the next run")
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"catalog_size":  len(ids),
		"training_rows": art.TrainingRows,
		"encoder":       art.EncoderID,
	}).Info("Training completed")

	return art, nil
}

func (p *Pipeline) trainReranker(ctx context.Context, index *ranker.Index) (*gbdt.Model, int, error) {
	links, err := p.deps.Links.ListLinked(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(links) == 0 {
		return nil, 0, fernerrors.DataConsistency("no verified listing links to train on")
	}

	names := ectolinq.Map(links, func(l models.LinkedListing) string { return l.ProductName })
	truth := ectolinq.Map(links, func(l models.LinkedListing) int64 { return l.ProductID })

	vectors, err := p.embed(ctx, names)
	if err != nil {
		return nil, 0, err
	}
	rankings, err := index.RankAll(ctx, vectors, p.cfg.Workers)
	if err != nil {
		return nil, 0, err
	}

	model, err := reranker.Train(ctx, rankings, truth, p.cfg.K, p.cfg.Params, p.logger)
	if err != nil {
		return nil, 0, err
	}
	return model, len(links), nil
}

func (p *Pipeline) scorer(art *artifact.Artifact) (reranker.Scorer, error) {
	if art.Model != nil {
		return reranker.ModelScorer{Model: art.Model}, nil
	}
	if p.deps.Scorer != nil {
		if sized, ok := p.deps.Scorer.(interface{ NumFeatures() int }); ok && sized.NumFeatures() != len(art.CatalogIDs) {
			return nil, fernerrors.DataConsistency("reranker model expects %d distances, catalog has %d items", sized.NumFeatures(), len(art.CatalogIDs))
		}
		return p.deps.Scorer, nil
	}
	return nil, fernerrors.ModelUnavailable(nil, "no reranker model available")
}

// candidates produces one candidate set per listing, in listing order.
func (p *Pipeline) candidates(ctx context.Context, art *artifact.Artifact, listings []models.DealerListing) ([]models.CandidateSet, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.candidates")
	defer span.End()

	scorer, err := p.scorer(art)
	if err != nil {
		return nil, err
	}
	index, err := ranker.NewIndex(art.CatalogIDs, art.CatalogVectors)
	if err != nil {
		return nil, fernerrors.DataConsistency("cached catalog matrix is invalid: %v", err)
	}

	names := ectolinq.Map(listings, func(l models.DealerListing) string { return l.ProductName })
	vectors, err := p.embed(ctx, names)
	if err != nil {
		return nil, err
	}
	rankings, err := index.RankAll(ctx, vectors, p.cfg.Workers)
	if err != nil {
		return nil, err
	}

	selected, err := reranker.New(scorer, p.cfg.K, p.cfg.Workers, p.logger).SelectAll(ctx, rankings)
	if err != nil {
		return nil, err
	}
	return pair(listings, selected, p.cfg.K)
}

// pair zips listings with their selected ids. A length mismatch means results can no longer be
// attributed to listings, so nothing is paired.
func pair(listings []models.DealerListing, selected [][]int64, k int) ([]models.CandidateSet, error) {
	if len(selected) != len(listings) {
		return nil, fernerrors.DataConsistency("got %d candidate sets for %d listings", len(selected), len(listings))
	}

	sets := make([]models.CandidateSet, len(listings))
	for i, l := range listings {
		if len(selected[i]) != k {
			return nil, fernerrors.DataConsistency("listing %d got %d candidates, want %d", l.ID, len(selected[i]), k).WithListing(l.ID)
		}
		sets[i] = models.CandidateSet{ListingID: l.ID, ProductIDs: selected[i]}
	}
	return sets, nil
}
