package events

import (
	"time"
)

type EventType string

const (
	EventTypeReviewAccepted EventType = "review.accepted"
	EventTypeReviewRejected EventType = "review.rejected"
	EventTypeReviewDeferred EventType = "review.deferred"

	EventTypeBatchCompleted EventType = "matching.batch_completed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Operator      string    `json:"operator,omitempty"`
}

// ReviewAcceptedEvent is emitted when an operator confirms a candidate
type ReviewAcceptedEvent struct {
	BaseEvent
	ListingID  int64   `json:"listing_id"`
	ProductID  int64   `json:"product_id"`
	Candidates []int64 `json:"candidates"`
}

// ReviewRejectedEvent is emitted when none of the candidates is the listing's product
type ReviewRejectedEvent struct {
	BaseEvent
	ListingID  int64   `json:"listing_id"`
	Candidates []int64 `json:"candidates"`
}

// ReviewDeferredEvent is emitted when a record is moved to the end of the queue
type ReviewDeferredEvent struct {
	BaseEvent
	ListingID int64 `json:"listing_id"`
	Sequence  int64 `json:"sequence"`
}

type BatchCompletedEvent struct {
	BaseEvent
	BatchID        string `json:"batch_id"`
	Listings       int    `json:"listings"`
	RecordsCreated int    `json:"records_created"`
	DurationMs     int64  `json:"duration_ms"`
	Retrained      bool   `json:"retrained"`
	CatalogSize    int    `json:"catalog_size"`
}
