// Package reviewtest provides an in-memory review store for tests.
package reviewtest

import (
	"context"
	"sort"
	"sync"
	"time"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryStore is an in-process review.Store and candidate writer. A single mutex serializes every
// transition, which gives the same atomicity the database store gets from transactions.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	records  map[int64]*models.ReviewRecord
	accepted map[int64]models.AcceptedMatch
	rejected map[int64]models.RejectedMatch
	counters models.Counters
	catalog  map[int64]models.CatalogItem
	listings map[int64]models.DealerListing
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		records:  make(map[int64]*models.ReviewRecord),
		accepted: make(map[int64]models.AcceptedMatch),
		rejected: make(map[int64]models.RejectedMatch),
		catalog:  make(map[int64]models.CatalogItem),
		listings: make(map[int64]models.DealerListing),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithDisplayData registers the catalog items and listings ListPending joins with.
func (s *MemoryStore) WithDisplayData(items []models.CatalogItem, listings []models.DealerListing) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.catalog[item.ID] = item
	}
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return s
}

// InsertCandidates stores one record per set with sequence equal to its id. Nothing is stored
// when any listing already has a record or a decision.
func (s *MemoryStore) InsertCandidates(_ context.Context, sets []models.CandidateSet) ([]models.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(sets))
	for _, set := range sets {
		if seen[set.ListingID] || s.decidedOrPending(set.ListingID) {
			return nil, fernerrors.DataConsistency("listing %d already has a review record or decision", set.ListingID).WithListing(set.ListingID)
		}
		seen[set.ListingID] = true
	}

	out := make([]models.ReviewRecord, 0, len(sets))
	for _, set := range sets {
		id := s.nextID
		s.nextID++
		record := &models.ReviewRecord{
			ID:         id,
			ListingID:  set.ListingID,
			ProductIDs: append([]int64(nil), set.ProductIDs...),
			Sequence:   id,
			CreatedAt:  s.now(),
		}
		s.records[set.ListingID] = record
		out = append(out, *record)
	}
	return out, nil
}

func (s *MemoryStore) decidedOrPending(listingID int64) bool {
	_, pending := s.records[listingID]
	_, accepted := s.accepted[listingID]
	_, rejected := s.rejected[listingID]
	return pending || accepted || rejected
}

// Known reports whether the listing has a pending record or a decision.
func (s *MemoryStore) Known(listingID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decidedOrPending(listingID)
}

func (s *MemoryStore) ListPending(_ context.Context) ([]models.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*models.ReviewRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Sequence < records[j].Sequence
	})

	entries := make([]models.PendingEntry, 0, len(records))
	for _, r := range records {
		entry := models.PendingEntry{
			ListingID:  r.ListingID,
			Sequence:   r.Sequence,
			ProductIDs: append([]int64(nil), r.ProductIDs...),
		}
		if l, ok := s.listings[r.ListingID]; ok {
			listing := l
			entry.Listing = &listing
		}
		for _, id := range r.ProductIDs {
			if item, ok := s.catalog[id]; ok {
				entry.Candidates = append(entry.Candidates, item)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *MemoryStore) pending(listingID int64) (*models.ReviewRecord, error) {
	r, ok := s.records[listingID]
	if !ok {
		return nil, fernerrors.NotFound("no pending review record for listing %d", listingID).WithListing(listingID)
	}
	return r, nil
}

func (s *MemoryStore) Accept(_ context.Context, listingID, productID int64, operator string) (*models.AcceptedMatch, []int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.pending(listingID)
	if err != nil {
		return nil, nil, err
	}
	if !r.CandidateSet().Contains(productID) {
		return nil, nil, fernerrors.InvalidSelection("product %d is not a candidate for listing %d", productID, listingID).
			WithListing(listingID).WithProduct(productID)
	}

	match := models.AcceptedMatch{
		ID:        r.ID,
		ListingID: listingID,
		ProductID: productID,
		Operator:  operator,
		CreatedAt: s.now(),
	}
	s.accepted[listingID] = match
	delete(s.records, listingID)
	s.counters.Accepted++

	return &match, append([]int64(nil), r.ProductIDs...), nil
}

func (s *MemoryStore) Reject(_ context.Context, listingID int64, operator string) (*models.RejectedMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.pending(listingID)
	if err != nil {
		return nil, err
	}

	match := models.RejectedMatch{
		ID:         r.ID,
		ListingID:  listingID,
		ProductIDs: append([]int64(nil), r.ProductIDs...),
		Operator:   operator,
		CreatedAt:  s.now(),
	}
	s.rejected[listingID] = match
	delete(s.records, listingID)
	s.counters.Rejected++

	return &match, nil
}

func (s *MemoryStore) Defer(_ context.Context, listingID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.pending(listingID)
	if err != nil {
		return 0, err
	}

	var maxSeq int64
	for _, other := range s.records {
		maxSeq = max(maxSeq, other.Sequence)
	}
	r.Sequence = maxSeq + 1
	// ids become sequences on insert
	s.nextID = max(s.nextID, r.Sequence+1)
	s.counters.Deferred++

	return r.Sequence, nil
}

func (s *MemoryStore) Counters(_ context.Context) (models.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, nil
}

// Accepted returns the accepted match for a listing, if any.
func (s *MemoryStore) Accepted(listingID int64) (models.AcceptedMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accepted[listingID]
	return m, ok
}

// Rejected returns the rejected match for a listing, if any.
func (s *MemoryStore) Rejected(listingID int64) (models.RejectedMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rejected[listingID]
	return m, ok
}
