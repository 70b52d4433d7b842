package partnermapping

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "partner_mappings"

// Repository persists (partner, entity type, external id) -> internal id mappings.
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

// Get returns nil when the triple is not registered.
func (r *Repository) Get(ctx context.Context, partner string, entityType models.EntityType, externalID string) (*models.PartnerMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "partnermapping.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("partner", "entity_type", "external_id", "internal_id", "created_at")
	sb.From(table)
	sb.Where(
		sb.Equal("partner", partner),
		sb.Equal("entity_type", entityType),
		sb.Equal("external_id", externalID),
	)

	query, args := sb.Build()
	var mapping models.PartnerMapping
	if err := database.Conn(ctx, r.db).GetContext(ctx, &mapping, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"partner":     partner,
			"entity_type": entityType,
			"external_id": externalID,
		}).Error("Failed to get partner mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get partner mapping")
	}

	return &mapping, nil
}

// Insert adds the mapping unless the triple already exists. It reports whether a row was
// written.
func (r *Repository) Insert(ctx context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "partnermapping.Repository.Insert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Insert",
		"partner":     partner,
		"entity_type": entityType,
		"external_id": externalID,
		"internal_id": internalID,
	})

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("partner", "entity_type", "external_id", "internal_id", "created_at")
	ib.Values(partner, entityType, externalID, internalID, time.Now().UTC())
	ib.OnConflictDoNothing("partner", "entity_type", "external_id")
	ib.Returning("internal_id")

	query, args := ib.Build()
	var inserted uuid.UUID
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&inserted); err != nil {
		if database.IsNoRows(err) {
			log.Debug("Partner mapping already exists")
			return false, nil
		}
		log.WithError(err).Error("Failed to insert partner mapping")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert partner mapping")
	}

	log.Debug("Inserted partner mapping")
	return true, nil
}
