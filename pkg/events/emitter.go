// Package events publishes review and matching lifecycle events.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value any) error
}

// Emitter is what the review queue and pipeline report transitions to.
type Emitter interface {
	EmitAccepted(ctx context.Context, match models.AcceptedMatch, candidates []int64) error
	EmitRejected(ctx context.Context, match models.RejectedMatch) error
	EmitDeferred(ctx context.Context, listingID, sequence int64) error
	EmitBatchCompleted(ctx context.Context, event BatchCompletedEvent) error
}

// KafkaEmitter publishes events through a Publisher.
type KafkaEmitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *KafkaEmitter) base(ctx context.Context, eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     e.now(),
		CorrelationID: fctx.GetRequestID(ctx),
		Operator:      fctx.GetOperator(ctx),
	}
}

func (e *KafkaEmitter) publish(ctx context.Context, key string, eventType EventType, event any) error {
	if err := e.publisher.Publish(ctx, key, string(eventType), event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "error").Inc()
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "ok").Inc()
	return nil
}

func (e *KafkaEmitter) EmitAccepted(ctx context.Context, match models.AcceptedMatch, candidates []int64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAccepted")
	defer span.End()

	event := ReviewAcceptedEvent{
		BaseEvent:  e.base(ctx, EventTypeReviewAccepted),
		ListingID:  match.ListingID,
		ProductID:  match.ProductID,
		Candidates: candidates,
	}
	return e.publish(ctx, listingKey(match.ListingID), EventTypeReviewAccepted, event)
}

func (e *KafkaEmitter) EmitRejected(ctx context.Context, match models.RejectedMatch) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRejected")
	defer span.End()

	event := ReviewRejectedEvent{
		BaseEvent:  e.base(ctx, EventTypeReviewRejected),
		ListingID:  match.ListingID,
		Candidates: match.ProductIDs,
	}
	return e.publish(ctx, listingKey(match.ListingID), EventTypeReviewRejected, event)
}

func (e *KafkaEmitter) EmitDeferred(ctx context.Context, listingID, sequence int64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDeferred")
	defer span.End()

	event := ReviewDeferredEvent{
		BaseEvent: e.base(ctx, EventTypeReviewDeferred),
		ListingID: listingID,
		Sequence:  sequence,
	}
	return e.publish(ctx, listingKey(listingID), EventTypeReviewDeferred, event)
}

func (e *KafkaEmitter) EmitBatchCompleted(ctx context.Context, event BatchCompletedEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchCompleted")
	defer span.End()

	event.BaseEvent = e.base(ctx, EventTypeBatchCompleted)
	return e.publish(ctx, event.BatchID, EventTypeBatchCompleted, event)
}

func listingKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// NoopEmitter drops every event. Used when Kafka is disabled.
type NoopEmitter struct{}

func (NoopEmitter) EmitAccepted(context.Context, models.AcceptedMatch, []int64) error { return nil }
func (NoopEmitter) EmitRejected(context.Context, models.RejectedMatch) error          { return nil }
func (NoopEmitter) EmitDeferred(context.Context, int64, int64) error                  { return nil }
func (NoopEmitter) EmitBatchCompleted(context.Context, BatchCompletedEvent) error     { return nil }
