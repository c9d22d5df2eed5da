package listing

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "dealer_listings"

var listingStruct = database.NewStruct(new(models.DealerListing))

// Repository reads scraped dealer listings.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) ListListings(ctx context.Context) ([]models.DealerListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListListings")
	defer span.End()

	sb := listingStruct.SelectFrom(tableName)
	sb.OrderBy("id")

	return r.selectListings(ctx, sb, "failed to list listings")
}

// ListUnmatched returns listings that have neither a pending review record nor a decision.
func (r *Repository) ListUnmatched(ctx context.Context) ([]models.DealerListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListUnmatched")
	defer span.End()

	sb := listingStruct.SelectFrom(tableName)
	sb.Where(
		"NOT EXISTS (SELECT 1 FROM review_records rr WHERE rr.listing_id = dealer_listings.id)",
		"NOT EXISTS (SELECT 1 FROM accepted_matches am WHERE am.listing_id = dealer_listings.id)",
		"NOT EXISTS (SELECT 1 FROM rejected_matches rm WHERE rm.listing_id = dealer_listings.id)",
	)
	sb.OrderBy("id")

	return r.selectListings(ctx, sb, "failed to list unmatched listings")
}

// ListLinked returns training rows: listings whose dealer key is linked to a named catalog item.
func (r *Repository) ListLinked(ctx context.Context) ([]models.LinkedListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListLinked")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("l.id AS listing_id", "l.product_name", "k.product_id")
	sb.From("dealer_listings l")
	sb.Join("listing_product_links k", "k.dealer_id = l.dealer_id", "k.key = l.product_key")
	sb.Join("catalog_products p", "p.id = k.product_id")
	sb.Where("TRIM(p.name) <> ''")
	sb.OrderBy("l.id")

	query, args := sb.Build()
	var rows []models.LinkedListing
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list linked listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list training listings")
	}
	return rows, nil
}

func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]models.DealerListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := listingStruct.SelectFrom(tableName)
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("id")

	return r.selectListings(ctx, sb, "failed to get listings")
}

func (r *Repository) selectListings(ctx context.Context, sb *sqlbuilder.SelectBuilder, message string) ([]models.DealerListing, error) {
	query, args := sb.Build()

	var listings []models.DealerListing
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select dealer listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, message)
	}
	return listings, nil
}
