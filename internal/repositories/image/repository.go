package image

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "images"

var imageColumns = []string{"id", "url", "caption", "alt_text", "copyright", "width", "height"}

// Repository stores deduplicated images keyed by URL.
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

func (r *Repository) getBy(ctx context.Context, column string, value any) (*models.Image, error) {
	sb := database.NewSelectBuilder()
	sb.Select(imageColumns...)
	sb.From(table)
	sb.Where(sb.Equal(column, value))

	query, args := sb.Build()
	var img models.Image
	if err := database.Conn(ctx, r.db).GetContext(ctx, &img, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField(column, value).Error("Failed to get image")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get image")
	}
	return &img, nil
}

// GetByURL returns nil when no image has the exact URL.
func (r *Repository) GetByURL(ctx context.Context, url string) (*models.Image, error) {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.GetByURL")
	defer span.End()

	return r.getBy(ctx, "url", url)
}

// Get returns nil when the image does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.Get")
	defer span.End()

	return r.getBy(ctx, "id", id)
}

// Insert creates the image unless another row already holds the URL, in which case it returns
// uuid.Nil and false.
func (r *Repository) Insert(ctx context.Context, url string, meta models.ImageMetadata) (uuid.UUID, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.Insert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(imageColumns...)
	ib.Values(uuid.New(), url, meta.Caption, meta.AltText, meta.Copyright, meta.Width, meta.Height)
	ib.OnConflictDoNothing("url")
	ib.Returning("id")

	query, args := ib.Build()
	var id uuid.UUID
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if database.IsNoRows(err) {
			return uuid.Nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("url", url).Error("Failed to insert image")
		return uuid.Nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert image")
	}

	return id, true, nil
}

// FillMetadata sets every provided field that is currently NULL. Populated fields are kept.
func (r *Repository) FillMetadata(ctx context.Context, id uuid.UUID, meta models.ImageMetadata) error {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.FillMetadata")
	defer span.End()

	if meta.IsEmpty() {
		return nil
	}

	query := `UPDATE images SET
		caption = COALESCE(caption, $1),
		alt_text = COALESCE(alt_text, $2),
		copyright = COALESCE(copyright, $3),
		width = COALESCE(width, $4),
		height = COALESCE(height, $5)
	WHERE id = $6`

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, meta.Caption, meta.AltText, meta.Copyright, meta.Width, meta.Height, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("image_id", id).Error("Failed to fill image metadata")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update image")
	}

	return nil
}

func referenceSubqueries() []string {
	tables := models.ImageLinkTables()
	subqueries := make([]string, 0, len(tables))
	for _, t := range tables {
		subqueries = append(subqueries, fmt.Sprintf("SELECT 1 FROM %s WHERE image_id = $1", t))
	}
	return subqueries
}

// ReferenceCount counts links to the image across every link table.
func (r *Repository) ReferenceCount(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.ReferenceCount")
	defer span.End()

	query := fmt.Sprintf("SELECT COUNT(*) FROM (%s) refs", strings.Join(referenceSubqueries(), " UNION ALL "))

	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("image_id", id).Error("Failed to count image references")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count image references")
	}

	return count, nil
}

// DeleteIfUnreferenced deletes the image only while no link table references it.
func (r *Repository) DeleteIfUnreferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "image.Repository.DeleteIfUnreferenced")
	defer span.End()

	conditions := make([]string, 0, 3)
	for _, sub := range referenceSubqueries() {
		conditions = append(conditions, fmt.Sprintf("NOT EXISTS (%s)", sub))
	}
	query := fmt.Sprintf("DELETE FROM images WHERE id = $1 AND %s", strings.Join(conditions, " AND "))

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("image_id", id).Error("Failed to delete image")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete image")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete image")
	}

	return affected > 0, nil
}
