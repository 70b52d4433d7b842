package syncrun

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

const table = "sync_runs"

type row struct {
	ID         uuid.UUID                         `db:"id"`
	Partner    string                            `db:"partner"`
	EntityType string                            `db:"entity_type"`
	Status     models.RunStatus                  `db:"status"`
	Summary    database.JSONB[models.RunSummary] `db:"summary"`
	Changes    database.JSONB[[]models.Change]   `db:"changes"`
	Error      *string                           `db:"error"`
	StartedAt  time.Time                         `db:"started_at"`
	FinishedAt *time.Time                        `db:"finished_at"`
}

func (r row) toModel() *models.SyncRun {
	changes := r.Changes.GetValue()
	if changes == nil {
		changes = []models.Change{}
	}
	return &models.SyncRun{
		ID:         r.ID,
		Partner:    r.Partner,
		EntityType: r.EntityType,
		Status:     r.Status,
		Summary:    r.Summary.GetValue(),
		Changes:    changes,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Repository persists import run history.
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

func (r *Repository) Create(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "partner", "entity_type", "status", "summary", "changes", "started_at")
	ib.Values(run.ID, run.Partner, run.EntityType, run.Status,
		database.NewJSONB(run.Summary), database.NewJSONB([]models.Change{}), run.StartedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("Failed to create sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync run")
	}

	return nil
}

// Finish records the final status, summary and change log of the run.
func (r *Repository) Finish(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Finish")
	defer span.End()

	changes := run.Changes
	if changes == nil {
		changes = []models.Change{}
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", run.Status),
		ub.Assign("summary", database.NewJSONB(run.Summary)),
		ub.Assign("changes", database.NewJSONB(changes)),
		ub.Assign("error", run.Error),
		ub.Assign("finished_at", run.FinishedAt),
	)
	ub.Where(ub.Equal("id", run.ID))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("Failed to finish sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish sync run")
	}

	return nil
}

// Get returns nil when the run does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "partner", "entity_type", "status", "summary", "changes", "error", "started_at", "finished_at")
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var res row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &res, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to get sync run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync run")
	}

	return res.toModel(), nil
}
