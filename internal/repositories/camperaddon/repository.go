package camperaddon

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "camper_addons"

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

func (r *Repository) Exists(ctx context.Context, camperID, addonID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "camperaddon.Repository.Exists")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(sb.Equal("camper_id", camperID), sb.Equal("addon_id", addonID))

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"camper_id": camperID,
			"addon_id":  addonID,
		}).Error("Failed to check camper addon")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check camper addon")
	}

	return count > 0, nil
}

// Insert links an addon to a camper. An existing pair is left untouched.
func (r *Repository) Insert(ctx context.Context, camperID, addonID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "camperaddon.Repository.Insert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("camper_id", "addon_id")
	ib.Values(camperID, addonID)
	ib.OnConflictDoNothing("camper_id", "addon_id")

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"camper_id": camperID,
			"addon_id":  addonID,
		}).Error("Failed to insert camper addon")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert camper addon")
	}

	return nil
}
