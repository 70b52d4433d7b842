package stations

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

type CalendarReader interface {
	Holidays(ctx context.Context, stationID uuid.UUID) ([]models.Holiday, error)
	SampleWindows(ctx context.Context, stationID uuid.UUID) ([]models.SampleWindow, error)
}

type Handler struct {
	stations CalendarReader
	logger   ectologger.Logger
}

func NewHandler(stations CalendarReader, logger ectologger.Logger) *Handler {
	return &Handler{stations: stations, logger: logger}
}

func (h *Handler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("/stations/:id/availability", h.GetAvailability, mw...)
}

type AvailabilityResponse struct {
	StationID     uuid.UUID             `json:"station_id"`
	Holidays      []models.Holiday      `json:"holidays"`
	SampleWindows []models.SampleWindow `json:"sample_windows"`
}

// GetAvailability returns the stored holidays and the sample windows found by the last imports.
func (h *Handler) GetAvailability(c echo.Context) error {
	ctx := c.Request().Context()

	stationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid station id")
	}

	holidays, err := h.stations.Holidays(ctx, stationID)
	if err != nil {
		return err
	}
	windows, err := h.stations.SampleWindows(ctx, stationID)
	if err != nil {
		return err
	}

	resp := AvailabilityResponse{
		StationID:     stationID,
		Holidays:      holidays,
		SampleWindows: windows,
	}
	if resp.Holidays == nil {
		resp.Holidays = []models.Holiday{}
	}
	if resp.SampleWindows == nil {
		resp.SampleWindows = []models.SampleWindow{}
	}

	return c.JSON(http.StatusOK, resp)
}
