package entity

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository writes canonical provider, station, camper and addon rows. Column names come
// from the partner mapping tables, never from request input.
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

func sortedColumns(values map[string]any) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Insert creates a row with the given id. Every column in values is written, nil as NULL.
func (r *Repository) Insert(ctx context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Insert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Insert",
		"entity_type": entityType,
		"id":          id,
	})

	table, err := entityType.Table()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	now := time.Now().UTC()
	cols := sortedColumns(values)
	row := make([]any, 0, len(cols)+3)
	row = append(row, id)
	for _, col := range cols {
		row = append(row, values[col])
	}
	row = append(row, now, now)

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(append(append([]string{"id"}, cols...), "created_at", "updated_at")...)
	ib.Values(row...)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			log.WithError(err).Warn("Entity already exists")
			return httperror.NewHTTPErrorf(http.StatusConflict, "%s %s already exists", entityType, id)
		}
		log.WithError(err).Error("Failed to insert entity")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert %s", entityType)
	}

	log.Debug("Inserted entity")
	return nil
}

// Update overwrites every column in values. It reports false when no row has the id.
func (r *Repository) Update(ctx context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Update")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Update",
		"entity_type": entityType,
		"id":          id,
	})

	table, err := entityType.Table()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	assignments := make([]string, 0, len(values)+1)
	for _, col := range sortedColumns(values) {
		assignments = append(assignments, ub.Assign(col, values[col]))
	}
	assignments = append(assignments, ub.Assign("updated_at", time.Now().UTC()))
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to update entity")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s", entityType)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		log.WithError(err).Error("Failed to read rows affected")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s", entityType)
	}

	log.WithField("rows", affected).Debug("Updated entity")
	return affected > 0, nil
}

// Names returns the id and name of every row of entityType, oldest first.
func (r *Repository) Names(ctx context.Context, entityType models.EntityType) ([]models.NamedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Names")
	defer span.End()

	table, err := entityType.Table()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name")
	sb.From(table)
	sb.Where(sb.IsNotNull("name"))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var rows []models.NamedEntity
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_type", entityType).Error("Failed to list entity names")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list %s names", entityType)
	}

	return rows, nil
}
