package matching

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrRunInProgress is returned when another run or training holds the pipeline lock.
var ErrRunInProgress = errors.New("a matching run is already in progress")

type CatalogReader interface {
	// ListEligible returns catalog items with non-empty names in id order.
	ListEligible(ctx context.Context) ([]models.CatalogItem, error)
}

type ListingReader interface {
	// ListUnmatched returns listings with no review record and no decision, in id order.
	ListUnmatched(ctx context.Context) ([]models.DealerListing, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.DealerListing, error)
}

type LinkReader interface {
	// ListLinked returns listing names paired with their verified catalog item.
	ListLinked(ctx context.Context) ([]models.LinkedListing, error)
}

// CandidateWriter stores a batch of candidate sets as review records in one transaction.
type CandidateWriter interface {
	InsertCandidates(ctx context.Context, sets []models.CandidateSet) ([]models.ReviewRecord, error)
}

// Locker serializes runs. redis.Locker satisfies it across replicas, LocalLocker within a process.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// LocalLocker is a process-local Locker. It fails fast instead of queueing.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	if !l.mu.TryLock() {
		return ErrRunInProgress
	}
	defer l.mu.Unlock()
	return fn(ctx)
}
