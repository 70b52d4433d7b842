package images

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/images"
	"github.com/Ramsey-B/fern/pkg/models"
)

type LinkDeleter interface {
	DeleteLink(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID) (*images.DeleteResult, error)
}

type Handler struct {
	images LinkDeleter
	logger ectologger.Logger
}

func NewHandler(images LinkDeleter, logger ectologger.Logger) *Handler {
	return &Handler{images: images, logger: logger}
}

func (h *Handler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.DELETE("/images/:parentType/:parentId/:imageId", h.DeleteLink, mw...)
}

// DeleteLink unlinks an image from its parent and deletes the image once nothing references it.
func (h *Handler) DeleteLink(c echo.Context) error {
	ctx := c.Request().Context()

	parentType, err := models.ParseEntityType(c.Param("parentType"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := models.ImageLinkTable(parentType); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	parentID, err := uuid.Parse(c.Param("parentId"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid parent id")
	}
	imageID, err := uuid.Parse(c.Param("imageId"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid image id")
	}

	result, err := h.images.DeleteLink(ctx, parentType, parentID, imageID)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"parent_type":   parentType,
		"parent_id":     parentID,
		"image_id":      imageID,
		"links_removed": result.LinksRemoved,
		"image_deleted": result.ImageDeleted,
	}).Info("Image link deleted")

	return c.JSON(http.StatusOK, result)
}
