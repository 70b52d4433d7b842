package station

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

// Repository stores station holiday calendars and the sample windows found for them.
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

// ReplaceHolidays swaps the station's holiday calendar for holidays in one transaction.
func (r *Repository) ReplaceHolidays(ctx context.Context, stationID uuid.UUID, holidays []models.Holiday) error {
	ctx, span := tracing.StartSpan(ctx, "station.Repository.ReplaceHolidays")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":     "ReplaceHolidays",
		"station_id": stationID,
		"count":      len(holidays),
	})

	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := database.Conn(ctx, r.db)

		del := database.NewDeleteBuilder()
		del.DeleteFrom("station_holidays")
		del.Where(del.Equal("station_id", stationID))
		query, args := del.Build()
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to clear station holidays")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace station holidays")
		}

		if len(holidays) == 0 {
			return nil
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto("station_holidays")
		ib.Cols("station_id", "start_date", "end_date")
		for _, h := range holidays {
			ib.Values(stationID, h.Start, h.End)
		}
		query, args = ib.Build()
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert station holidays")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace station holidays")
		}

		log.Debug("Replaced station holidays")
		return nil
	})
}

func (r *Repository) Holidays(ctx context.Context, stationID uuid.UUID) ([]models.Holiday, error) {
	ctx, span := tracing.StartSpan(ctx, "station.Repository.Holidays")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("station_id", "start_date", "end_date")
	sb.From("station_holidays")
	sb.Where(sb.Equal("station_id", stationID))
	sb.OrderBy("start_date").Asc()

	query, args := sb.Build()
	var holidays []models.Holiday
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &holidays, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("station_id", stationID).Error("Failed to list station holidays")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list station holidays")
	}

	return holidays, nil
}

// SaveSampleWindow stores the window for the station and category, replacing an older one.
func (r *Repository) SaveSampleWindow(ctx context.Context, w models.SampleWindow) error {
	ctx, span := tracing.StartSpan(ctx, "station.Repository.SaveSampleWindow")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("station_sample_windows")
	ib.Cols("station_id", "fleet_category", "start_date", "end_date", "found_at")
	ib.Values(w.StationID, w.FleetCategory, w.Start, w.End, w.FoundAt)
	ib.OnConflictUpdate([]string{"station_id", "fleet_category"}, "start_date", "end_date", "found_at")

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"station_id":     w.StationID,
			"fleet_category": w.FleetCategory,
		}).Error("Failed to save sample window")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save sample window")
	}

	return nil
}

func (r *Repository) SampleWindows(ctx context.Context, stationID uuid.UUID) ([]models.SampleWindow, error) {
	ctx, span := tracing.StartSpan(ctx, "station.Repository.SampleWindows")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("station_id", "fleet_category", "start_date", "end_date", "found_at")
	sb.From("station_sample_windows")
	sb.Where(sb.Equal("station_id", stationID))
	sb.OrderBy("fleet_category").Asc()

	query, args := sb.Build()
	var windows []models.SampleWindow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &windows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("station_id", stationID).Error("Failed to list sample windows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sample windows")
	}

	return windows, nil
}
