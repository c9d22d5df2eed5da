package catalog

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

const (
	productsTable = "catalog_products"
	dealersTable  = "dealers"
)

var productStruct = database.NewStruct(new(models.CatalogItem))

// Repository reads the manufacturer catalog and the dealer directory.
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

// ListProducts returns every catalog item in id order.
func (r *Repository) ListProducts(ctx context.Context) ([]models.CatalogItem, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListProducts")
	defer span.End()

	sb := productStruct.SelectFrom(productsTable)
	sb.OrderBy("id")

	return r.selectProducts(ctx, sb, "failed to list products")
}

// ListEligible returns catalog items with a non-blank name in id order.
func (r *Repository) ListEligible(ctx context.Context) ([]models.CatalogItem, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListEligible")
	defer span.End()

	sb := productStruct.SelectFrom(productsTable)
	sb.Where("TRIM(name) <> ''")
	sb.OrderBy("id")

	return r.selectProducts(ctx, sb, "failed to list catalog")
}

func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]models.CatalogItem, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := productStruct.SelectFrom(productsTable)
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("id")

	return r.selectProducts(ctx, sb, "failed to get products")
}

func (r *Repository) selectProducts(ctx context.Context, sb *sqlbuilder.SelectBuilder, message string) ([]models.CatalogItem, error) {
	query, args := sb.Build()

	var items []models.CatalogItem
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select catalog products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, message)
	}
	return items, nil
}

func (r *Repository) ListDealers(ctx context.Context) ([]models.Dealer, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListDealers")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name")
	sb.From(dealersTable)
	sb.OrderBy("id")

	query, args := sb.Build()
	var dealers []models.Dealer
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &dealers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list dealers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list dealers")
	}
	return dealers, nil
}
