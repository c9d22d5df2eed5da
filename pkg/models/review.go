package models

import (
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/lib/pq"
)

// CandidateSetSize is the number of catalog ids proposed per listing.
const CandidateSetSize = 5

// CandidateSet is the ranked shortlist for one listing, best first.
type CandidateSet struct {
	ListingID  int64   `json:"listing_id"`
	ProductIDs []int64 `json:"product_ids"`
}

// Contains reports whether productID is one of the candidates.
func (c CandidateSet) Contains(productID int64) bool {
	return ectolinq.Contains(c.ProductIDs, productID)
}

// ReviewRecord is a pending candidate set in the review queue.
type ReviewRecord struct {
	ID         int64         `json:"id" db:"id"`
	ListingID  int64         `json:"listing_id" db:"listing_id"`
	ProductIDs pq.Int64Array `json:"product_ids" db:"product_ids"`
	Sequence   int64         `json:"sequence" db:"sequence"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

func (r ReviewRecord) CandidateSet() CandidateSet {
	return CandidateSet{ListingID: r.ListingID, ProductIDs: []int64(r.ProductIDs)}
}

type AcceptedMatch struct {
	ID        int64     `json:"id" db:"id"`
	ListingID int64     `json:"listing_id" db:"listing_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Operator  string    `json:"operator,omitempty" db:"operator"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type RejectedMatch struct {
	ID         int64         `json:"id" db:"id"`
	ListingID  int64         `json:"listing_id" db:"listing_id"`
	ProductIDs pq.Int64Array `json:"product_ids" db:"product_ids"`
	Operator   string        `json:"operator,omitempty" db:"operator"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// Counters are the review audit counters.
type Counters struct {
	Accepted int64 `json:"accepted" db:"accepted"`
	Rejected int64 `json:"rejected" db:"rejected"`
	Deferred int64 `json:"deferred" db:"deferred"`
}

type Statistics struct {
	Total                 int64   `json:"total"`
	Accepted              int64   `json:"accepted"`
	Rejected              int64   `json:"rejected"`
	Deferred              int64   `json:"deferred"`
	AcceptanceRatePercent float64 `json:"acceptance_rate_percent"`
}

// NewStatistics derives the statistics view. The rate is 0 when no decision was made yet.
func NewStatistics(c Counters) Statistics {
	total := c.Accepted + c.Rejected + c.Deferred
	stats := Statistics{
		Total:    total,
		Accepted: c.Accepted,
		Rejected: c.Rejected,
		Deferred: c.Deferred,
	}
	if total > 0 {
		stats.AcceptanceRatePercent = float64(c.Accepted) / float64(total) * 100
	}
	return stats
}

// PendingEntry is a review record joined with what the operator needs to decide on it.
type PendingEntry struct {
	ListingID  int64          `json:"listing_id"`
	Sequence   int64          `json:"sequence"`
	Listing    *DealerListing `json:"listing,omitempty"`
	DealerName string         `json:"dealer_name,omitempty"`
	ProductIDs []int64        `json:"product_ids"`
	Candidates []CatalogItem  `json:"candidates"`
}

// ReviewAction is the decision taken on a pending record.
type ReviewAction string

const (
	ReviewActionAccept ReviewAction = "accept"
	ReviewActionReject ReviewAction = "reject"
	ReviewActionDefer  ReviewAction = "defer"
)
