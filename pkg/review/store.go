// Package review implements the operator review queue: pending candidate sets ordered by
// sequence, and the accept, defer and reject transitions on them.
package review

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store persists review records, terminal decisions and counters. Every transition runs
// atomically: the record change, the terminal row and the counter increment commit together
// or not at all. Transitions on a missing record fail with a NotFound error.
type Store interface {
	ListPending(ctx context.Context) ([]models.PendingEntry, error)

	// Accept fails with InvalidSelection when productID is not one of the record's candidates.
	Accept(ctx context.Context, listingID, productID int64, operator string) (*models.AcceptedMatch, []int64, error)
	Reject(ctx context.Context, listingID int64, operator string) (*models.RejectedMatch, error)
	// Defer moves the record behind every other pending record and returns its new sequence.
	Defer(ctx context.Context, listingID int64) (int64, error)

	Counters(ctx context.Context) (models.Counters, error)
}
