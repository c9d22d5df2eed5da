package matching

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/artifact"
	pipeline "github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
)

type Service interface {
	Run(ctx context.Context) (int, error)
	Train(ctx context.Context) (*artifact.Artifact, error)
	Preview(ctx context.Context, listingIDs []int64) ([]models.CandidateSet, error)
}

type PreviewRequest struct {
	ListingIDs []int64 `json:"listing_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

type RunResponse struct {
	Created int `json:"created"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/runs", h.Run)
	g.POST("/training", h.Train)
	g.POST("/preview", h.Preview)
}

func conflict(err error) error {
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

// Run matches every unmatched listing and reports how many review records were created.
func (h *Handler) Run(c echo.Context) error {
	created, err := h.service.Run(c.Request().Context())
	if err != nil {
		return conflict(err)
	}
	return c.JSON(http.StatusOK, RunResponse{Created: created})
}

func (h *Handler) Train(c echo.Context) error {
	art, err := h.service.Train(c.Request().Context())
	if err != nil {
		return conflict(err)
	}
	return c.JSON(http.StatusOK, art.Metadata())
}

func (h *Handler) Preview(c echo.Context) error {
	var req PreviewRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	sets, err := h.service.Preview(c.Request().Context(), req.ListingIDs)
	if err != nil {
		return conflict(err)
	}
	return c.JSON(http.StatusOK, sets)
}
