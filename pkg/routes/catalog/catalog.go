package catalog

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

type CatalogReader interface {
	ListProducts(ctx context.Context) ([]models.CatalogItem, error)
	ListDealers(ctx context.Context) ([]models.Dealer, error)
}

type ListingReader interface {
	ListListings(ctx context.Context) ([]models.DealerListing, error)
}

// Handler serves the read-only reference data the review screen shows.
type Handler struct {
	catalog  CatalogReader
	listings ListingReader
}

func NewHandler(catalog CatalogReader, listings ListingReader) *Handler {
	return &Handler{catalog: catalog, listings: listings}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/dealers", h.ListDealers)
	g.GET("/products", h.ListProducts)
	g.GET("/listings", h.ListListings)
}

func (h *Handler) ListDealers(c echo.Context) error {
	dealers, err := h.catalog.ListDealers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dealers)
}

func (h *Handler) ListProducts(c echo.Context) error {
	products, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, products)
}

func (h *Handler) ListListings(c echo.Context) error {
	listings, err := h.listings.ListListings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listings)
}
