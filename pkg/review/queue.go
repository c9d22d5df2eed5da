package review

import (
	"context"

	"github.com/Gobusters/ectologger"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Queue is the review service. Events and metrics are only reported after the store commits.
type Queue struct {
	store   Store
	emitter events.Emitter
	logger  ectologger.Logger
}

func NewQueue(store Store, emitter events.Emitter, logger ectologger.Logger) *Queue {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Queue{store: store, emitter: emitter, logger: logger}
}

// List returns pending entries in ascending sequence order.
func (q *Queue) List(ctx context.Context) ([]models.PendingEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Queue.List")
	defer span.End()

	entries, err := q.store.ListPending(ctx)
	if err != nil {
		q.logger.WithContext(ctx).WithError(err).Error("Failed to list pending review records")
		return nil, err
	}
	return entries, nil
}

// Accept records productID as the listing's match.
func (q *Queue) Accept(ctx context.Context, listingID, productID int64) (*models.AcceptedMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Queue.Accept")
	defer span.End()

	match, candidates, err := q.store.Accept(ctx, listingID, productID, fctx.GetOperator(ctx))
	if err != nil {
		q.fail(ctx, models.ReviewActionAccept, err, map[string]any{"listing_id": listingID, "product_id": productID})
		return nil, err
	}
	metrics.ReviewDecisionsTotal.WithLabelValues(string(models.ReviewActionAccept)).Inc()

	q.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": listingID,
		"product_id": productID,
	}).Info("Accepted match")

	if err := q.emitter.EmitAccepted(ctx, *match, candidates); err != nil {
		q.logger.WithContext(ctx).WithError(err).Warn("Accepted match committed but event was not published")
	}
	return match, nil
}

// Defer moves the listing's record to the end of the queue and returns its new sequence.
func (q *Queue) Defer(ctx context.Context, listingID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Queue.Defer")
	defer span.End()

	sequence, err := q.store.Defer(ctx, listingID)
	if err != nil {
		q.fail(ctx, models.ReviewActionDefer, err, map[string]any{"listing_id": listingID})
		return 0, err
	}
	metrics.ReviewDecisionsTotal.WithLabelValues(string(models.ReviewActionDefer)).Inc()

	q.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": listingID,
		"sequence":   sequence,
	}).Info("Deferred review record")

	if err := q.emitter.EmitDeferred(ctx, listingID, sequence); err != nil {
		q.logger.WithContext(ctx).WithError(err).Warn("Deferral committed but event was not published")
	}
	return sequence, nil
}

// Reject records that none of the candidates is the listing's product.
func (q *Queue) Reject(ctx context.Context, listingID int64) (*models.RejectedMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Queue.Reject")
	defer span.End()

	match, err := q.store.Reject(ctx, listingID, fctx.GetOperator(ctx))
	if err != nil {
		q.fail(ctx, models.ReviewActionReject, err, map[string]any{"listing_id": listingID})
		return nil, err
	}
	metrics.ReviewDecisionsTotal.WithLabelValues(string(models.ReviewActionReject)).Inc()

	q.logger.WithContext(ctx).WithField("listing_id", listingID).Info("Rejected candidates")

	if err := q.emitter.EmitRejected(ctx, *match); err != nil {
		q.logger.WithContext(ctx).WithError(err).Warn("Rejection committed but event was not published")
	}
	return match, nil
}

func (q *Queue) Statistics(ctx context.Context) (models.Statistics, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Queue.Statistics")
	defer span.End()

	counters, err := q.store.Counters(ctx)
	if err != nil {
		q.logger.WithContext(ctx).WithError(err).Error("Failed to read review counters")
		return models.Statistics{}, err
	}
	return models.NewStatistics(counters), nil
}

// fail logs expected outcomes (not found, invalid selection) as warnings and everything else as errors.
func (q *Queue) fail(ctx context.Context, action models.ReviewAction, err error, fields map[string]any) {
	kind := "internal"
	if me, ok := fernerrors.AsMatchError(err); ok {
		kind = string(me.Kind)
	}
	metrics.ReviewErrorsTotal.WithLabelValues(string(action), kind).Inc()

	log := q.logger.WithContext(ctx).WithError(err).WithFields(fields)
	switch kind {
	case string(fernerrors.KindNotFound), string(fernerrors.KindInvalidSelection):
		log.Warnf("Review %s refused", action)
	default:
		log.Errorf("Review %s failed", action)
	}
}
