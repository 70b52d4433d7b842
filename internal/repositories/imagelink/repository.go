package imagelink

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository manages the camper, station and provider image association tables.
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

func linkTable(parentType models.EntityType) (string, error) {
	table, err := models.ImageLinkTable(parentType)
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return table, nil
}

func (r *Repository) Exists(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID, category string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "imagelink.Repository.Exists")
	defer span.End()

	table, err := linkTable(parentType)
	if err != nil {
		return false, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(
		sb.Equal("parent_id", parentID),
		sb.Equal("image_id", imageID),
		sb.Equal("category", category),
	)

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"parent_type": parentType,
			"parent_id":   parentID,
			"image_id":    imageID,
		}).Error("Failed to check image link")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check image link")
	}

	return count > 0, nil
}

// Insert reports whether a new link row was written.
func (r *Repository) Insert(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID, category string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "imagelink.Repository.Insert")
	defer span.End()

	table, err := linkTable(parentType)
	if err != nil {
		return false, err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("parent_id", "image_id", "category")
	ib.Values(parentID, imageID, category)
	ib.OnConflictDoNothing("parent_id", "image_id", "category")

	query, args := ib.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"parent_type": parentType,
			"parent_id":   parentID,
			"image_id":    imageID,
		}).Error("Failed to insert image link")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert image link")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert image link")
	}
	return affected > 0, nil
}

// Delete removes every link between the parent and the image and returns how many were removed.
func (r *Repository) Delete(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "imagelink.Repository.Delete")
	defer span.End()

	table, err := linkTable(parentType)
	if err != nil {
		return 0, err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("parent_id", parentID), db.Equal("image_id", imageID))

	query, args := db.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"parent_type": parentType,
			"parent_id":   parentID,
			"image_id":    imageID,
		}).Error("Failed to delete image link")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete image link")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete image link")
	}
	return affected, nil
}
