package imports

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
)

type Runner interface {
	Run(ctx context.Context, partner, entityType string) (*importer.ImportResult, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
}

type runRequest struct {
	Partner    string `param:"partner" validate:"required,max=64,alphanum"`
	EntityType string `param:"entityType" validate:"required,max=32,alpha"`
}

type RunResponse struct {
	Message string            `json:"message"`
	RunID   uuid.UUID         `json:"run_id"`
	Summary models.RunSummary `json:"summary"`
	Changes []string          `json:"changes"`
}

type FailureResponse struct {
	Error   string     `json:"error"`
	Details string     `json:"details,omitempty"`
	RunID   *uuid.UUID `json:"run_id,omitempty"`
}

type Handler struct {
	runner   Runner
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewHandler(runner Runner, logger ectologger.Logger) *Handler {
	return &Handler{
		runner:   runner,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the import routes on g. mw guards every route.
func (h *Handler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/imports/:partner/:entityType", h.RunImport, mw...)
	g.GET("/imports/runs/:id", h.GetRun, mw...)
}

// RunImport runs one import synchronously and answers with its change log.
func (h *Handler) RunImport(c echo.Context) error {
	ctx := c.Request().Context()

	var req runRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid import request")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid import request: %v", err)
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"partner":     req.Partner,
		"entity_type": req.EntityType,
		"user_id":     fctx.GetUserID(ctx),
	}).Info("Import requested")

	result, err := h.runner.Run(ctx, req.Partner, req.EntityType)

	var importErr *importer.ImportError
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrUnknownPartner):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, importer.ErrUnknownEntityType):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &importErr):
		resp := FailureResponse{Error: importErr.Message, Details: importErr.Details}
		if importErr.RunID != uuid.Nil {
			resp.RunID = &importErr.RunID
		}
		return c.JSON(http.StatusInternalServerError, resp)
	default:
		return c.JSON(http.StatusInternalServerError, FailureResponse{Error: "import failed", Details: err.Error()})
	}

	changes := result.Lines
	if changes == nil {
		changes = []string{}
	}
	return c.JSON(http.StatusOK, RunResponse{
		Message: fmt.Sprintf("imported %s from %s", result.EntityType, result.Partner),
		RunID:   result.RunID,
		Summary: result.Summary,
		Changes: changes,
	})
}

func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	run, err := h.runner.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "import run not found")
	}
	return c.JSON(http.StatusOK, run)
}
