package review

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
)

// Service is the review queue as the routes use it.
type Service interface {
	List(ctx context.Context) ([]models.PendingEntry, error)
	Accept(ctx context.Context, listingID, productID int64) (*models.AcceptedMatch, error)
	Defer(ctx context.Context, listingID int64) (int64, error)
	Reject(ctx context.Context, listingID int64) (*models.RejectedMatch, error)
}

type AcceptRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type DeferResponse struct {
	ListingID int64 `json:"listing_id"`
	Sequence  int64 `json:"sequence"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/:listing_id/accept", h.Accept)
	g.POST("/:listing_id/defer", h.Defer)
	g.POST("/:listing_id/reject", h.Reject)
}

// List returns pending records, next to review first.
func (h *Handler) List(c echo.Context) error {
	entries, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Accept(c echo.Context) error {
	listingID, err := request.PathID(c, "listing_id")
	if err != nil {
		return err
	}
	var req AcceptRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	match, err := h.service.Accept(c.Request().Context(), listingID, req.ProductID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, match)
}

func (h *Handler) Defer(c echo.Context) error {
	listingID, err := request.PathID(c, "listing_id")
	if err != nil {
		return err
	}

	sequence, err := h.service.Defer(c.Request().Context(), listingID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeferResponse{ListingID: listingID, Sequence: sequence})
}

func (h *Handler) Reject(c echo.Context) error {
	listingID, err := request.PathID(c, "listing_id")
	if err != nil {
		return err
	}

	match, err := h.service.Reject(c.Request().Context(), listingID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, match)
}
