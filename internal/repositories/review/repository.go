package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	recordsTable  = "review_records"
	acceptedTable = "accepted_matches"
	rejectedTable = "rejected_matches"
	countersTable = "review_counters"

	countersRowID = 1

	// sequenceLockKey serializes sequence assignment between inserts and defers.
	sequenceLockKey int64 = 0x6665726e

	recordsIDSequence = "review_records_id_seq"
)

var recordColumns = []string{"id", "listing_id", "product_ids", "sequence", "created_at"}

// Repository is the PostgreSQL review store. Each transition runs in one transaction that locks
// the record it consumes, so a record is decided at most once.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) internal(ctx context.Context, err error, message string, fields map[string]any) error {
	r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error(message)
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// InsertCandidates stores one record per candidate set with sequence equal to the record id.
// The batch is rejected as a whole when any listing already has a record or a decision.
func (r *Repository) InsertCandidates(ctx context.Context, sets []models.CandidateSet) ([]models.ReviewRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.InsertCandidates")
	defer span.End()

	if len(sets) == 0 {
		return nil, nil
	}

	listingIDs := ectolinq.Map(sets, func(s models.CandidateSet) int64 { return s.ListingID })

	var records []models.ReviewRecord
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		if err := database.AdvisoryXactLock(ctx, tx, sequenceLockKey); err != nil {
			return r.internal(ctx, err, "failed to lock review queue", map[string]any{"count": len(sets)})
		}

		known, err := r.knownListings(ctx, tx, listingIDs)
		if err != nil {
			return err
		}
		if len(known) > 0 {
			return fernerrors.DataConsistency("listings %v already have a review record or decision", known).WithListing(known[0])
		}

		now := r.now()
		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(recordsTable)
		ib.Cols("listing_id", "product_ids", "sequence", "created_at")
		for _, set := range sets {
			ib.Values(set.ListingID, pq.Int64Array(set.ProductIDs), 0, now)
		}
		ib.SQL("RETURNING id")

		query, args := ib.Build()
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fernerrors.DataConsistency("duplicate review record in batch: %s", pqErr.Detail)
			}
			return r.internal(ctx, err, "failed to insert review records", map[string]any{"count": len(sets)})
		}

		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(recordsTable)
		ub.Set("sequence = id")
		ub.Where(fmt.Sprintf("id = ANY(%s)", ub.Var(pq.Array(ids))))
		ub.SQL("RETURNING " + strings.Join(recordColumns, ", "))

		query, args = ub.Build()
		if err := tx.SelectContext(ctx, &records, query, args...); err != nil {
			return r.internal(ctx, err, "failed to assign review sequences", map[string]any{"count": len(ids)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	r.logger.WithContext(ctx).WithField("count", len(records)).Debug("Inserted review records")
	return records, nil
}

func (r *Repository) knownListings(ctx context.Context, q database.Querier, listingIDs []int64) ([]int64, error) {
	query := fmt.Sprintf(
		"SELECT listing_id FROM %s WHERE listing_id = ANY($1) UNION SELECT listing_id FROM %s WHERE listing_id = ANY($1) UNION SELECT listing_id FROM %s WHERE listing_id = ANY($1)",
		recordsTable, acceptedTable, rejectedTable,
	)

	var known []int64
	if err := q.SelectContext(ctx, &known, query, pq.Array(listingIDs)); err != nil {
		return nil, r.internal(ctx, err, "failed to check existing review records", nil)
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })
	return known, nil
}

type pendingRow struct {
	ListingID   int64         `db:"listing_id"`
	Sequence    int64         `db:"sequence"`
	ProductIDs  pq.Int64Array `db:"product_ids"`
	ProductKey  string        `db:"product_key"`
	Price       float64       `db:"price"`
	ProductURL  *string       `db:"product_url"`
	ProductName string        `db:"product_name"`
	Date        time.Time     `db:"date"`
	DealerID    int64         `db:"dealer_id"`
	DealerName  string        `db:"dealer_name"`
}

// ListPending returns pending records in ascending sequence order, joined with the listing, its
// dealer and the candidate catalog items in candidate order.
func (r *Repository) ListPending(ctx context.Context) ([]models.PendingEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.ListPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"r.listing_id", "r.sequence", "r.product_ids",
		"l.product_key", "l.price", "l.product_url", "l.product_name", "l.date", "l.dealer_id",
		"d.name AS dealer_name",
	)
	sb.From(recordsTable + " r")
	sb.Join("dealer_listings l", "l.id = r.listing_id")
	sb.Join("dealers d", "d.id = l.dealer_id")
	sb.OrderBy("r.sequence")

	query, args := sb.Build()
	var rows []pendingRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.internal(ctx, err, "failed to list review records", nil)
	}
	if len(rows) == 0 {
		return []models.PendingEntry{}, nil
	}

	var productIDs []int64
	for _, row := range rows {
		productIDs = append(productIDs, row.ProductIDs...)
	}
	products, err := r.products(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	entries := make([]models.PendingEntry, len(rows))
	for i, row := range rows {
		entries[i] = models.PendingEntry{
			ListingID:  row.ListingID,
			Sequence:   row.Sequence,
			DealerName: row.DealerName,
			ProductIDs: []int64(row.ProductIDs),
			Listing: &models.DealerListing{
				ID:          row.ListingID,
				ProductKey:  row.ProductKey,
				Price:       row.Price,
				ProductURL:  row.ProductURL,
				ProductName: row.ProductName,
				Date:        row.Date,
				DealerID:    row.DealerID,
			},
		}
		for _, id := range row.ProductIDs {
			if item, ok := products[id]; ok {
				entries[i].Candidates = append(entries[i].Candidates, item)
			}
		}
	}
	return entries, nil
}

func (r *Repository) products(ctx context.Context, ids []int64) (map[int64]models.CatalogItem, error) {
	sb := database.NewStruct(new(models.CatalogItem)).SelectFrom("catalog_products")
	sb.Where(fmt.Sprintf("id = ANY(%s)", sb.Var(pq.Array(ids))))

	query, args := sb.Build()
	var items []models.CatalogItem
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &items, query, args...); err != nil {
		return nil, r.internal(ctx, err, "failed to load candidate products", nil)
	}

	out := make(map[int64]models.CatalogItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// lockPending loads and row-locks the listing's pending record.
func (r *Repository) lockPending(ctx context.Context, q database.Querier, listingID int64) (*models.ReviewRecord, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From(recordsTable)
	sb.Where(sb.Equal("listing_id", listingID))
	sb.ForUpdate()

	query, args := sb.Build()
	var record models.ReviewRecord
	if err := q.GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, fernerrors.NotFound("no pending review record for listing %d", listingID).WithListing(listingID)
		}
		return nil, r.internal(ctx, err, "failed to load review record", map[string]any{"listing_id": listingID})
	}
	return &record, nil
}

func (r *Repository) consume(ctx context.Context, q database.Querier, record *models.ReviewRecord, counter string) error {
	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(recordsTable)
	del.Where(del.Equal("id", record.ID))

	query, args := del.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, "failed to delete review record", map[string]any{"listing_id": record.ListingID})
	}
	return r.increment(ctx, q, counter)
}

func (r *Repository) increment(ctx context.Context, q database.Querier, counter string) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(countersTable)
	ub.Set(ub.Incr(counter))
	ub.Where(ub.Equal("id", countersRowID))

	query, args := ub.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, "failed to update review counters", map[string]any{"counter": counter})
	}
	return nil
}

// Accept stores the accepted match, consumes the record and increments the accepted counter.
// It returns the consumed candidate ids alongside the match.
func (r *Repository) Accept(ctx context.Context, listingID, productID int64, operator string) (*models.AcceptedMatch, []int64, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Accept")
	defer span.End()

	var match models.AcceptedMatch
	var candidates []int64
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		record, err := r.lockPending(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if !record.CandidateSet().Contains(productID) {
			return fernerrors.InvalidSelection("product %d is not a candidate for listing %d", productID, listingID).
				WithListing(listingID).WithProduct(productID)
		}

		match = models.AcceptedMatch{
			ID:        record.ID,
			ListingID: listingID,
			ProductID: productID,
			Operator:  operator,
			CreatedAt: r.now(),
		}
		candidates = []int64(record.ProductIDs)

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(acceptedTable)
		ib.Cols("id", "listing_id", "product_id", "operator", "created_at")
		ib.Values(match.ID, match.ListingID, match.ProductID, match.Operator, match.CreatedAt)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return r.internal(ctx, err, "failed to store accepted match", map[string]any{"listing_id": listingID})
		}
		return r.consume(ctx, tx, record, "accepted")
	})
	if err != nil {
		return nil, nil, err
	}
	return &match, candidates, nil
}

// Reject stores the full candidate set as rejected, consumes the record and increments the
// rejected counter.
func (r *Repository) Reject(ctx context.Context, listingID int64, operator string) (*models.RejectedMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Reject")
	defer span.End()

	var match models.RejectedMatch
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		record, err := r.lockPending(ctx, tx, listingID)
		if err != nil {
			return err
		}

		match = models.RejectedMatch{
			ID:         record.ID,
			ListingID:  listingID,
			ProductIDs: record.ProductIDs,
			Operator:   operator,
			CreatedAt:  r.now(),
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(rejectedTable)
		ib.Cols("id", "listing_id", "product_ids", "operator", "created_at")
		ib.Values(match.ID, match.ListingID, match.ProductIDs, match.Operator, match.CreatedAt)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return r.internal(ctx, err, "failed to store rejected match", map[string]any{"listing_id": listingID})
		}
		return r.consume(ctx, tx, record, "rejected")
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// Defer moves the record behind every other pending record and increments the deferred counter.
func (r *Repository) Defer(ctx context.Context, listingID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Defer")
	defer span.End()

	var sequence int64
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		if err := database.AdvisoryXactLock(ctx, tx, sequenceLockKey); err != nil {
			return r.internal(ctx, err, "failed to lock review queue", map[string]any{"listing_id": listingID})
		}

		record, err := r.lockPending(ctx, tx, listingID)
		if err != nil {
			return err
		}

		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(recordsTable)
		ub.Set(fmt.Sprintf("sequence = (SELECT COALESCE(MAX(sequence), 0) + 1 FROM %s)", recordsTable))
		ub.Where(ub.Equal("id", record.ID))
		ub.SQL("RETURNING sequence")

		query, args := ub.Build()
		if err := tx.GetContext(ctx, &sequence, query, args...); err != nil {
			return r.internal(ctx, err, "failed to defer review record", map[string]any{"listing_id": listingID})
		}

		// Record ids become sequences on insert, so the id sequence must stay ahead of a deferred one.
		advance := fmt.Sprintf("SELECT setval('%[1]s', GREATEST($1, last_value)) FROM %[1]s", recordsIDSequence)
		if _, err := tx.ExecContext(ctx, advance, sequence); err != nil {
			return r.internal(ctx, err, "failed to advance review record ids", map[string]any{"listing_id": listingID})
		}
		return r.increment(ctx, tx, "deferred")
	})
	if err != nil {
		return 0, err
	}
	return sequence, nil
}

func (r *Repository) Counters(ctx context.Context) (models.Counters, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Counters")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("accepted", "rejected", "deferred")
	sb.From(countersTable)
	sb.Where(sb.Equal("id", countersRowID))

	query, args := sb.Build()
	var counters models.Counters
	if err := database.Conn(ctx, r.db).GetContext(ctx, &counters, query, args...); err != nil {
		if database.IsNoRows(err) {
			return models.Counters{}, nil
		}
		return models.Counters{}, r.internal(ctx, err, "failed to read review counters", nil)
	}
	return counters, nil
}
