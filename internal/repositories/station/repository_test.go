package station

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger)
	return NewRepository(db, logger), mock
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReplaceHolidays(t *testing.T) {
	repo, mock := newTestRepository(t)
	stationID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM station_holidays WHERE station_id = $1")).
		WithArgs(stationID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO station_holidays (station_id, start_date, end_date) VALUES ($1, $2, $3), ($4, $5, $6)")).
		WithArgs(stationID, day(2025, 12, 24), day(2025, 12, 26), stationID, day(2025, 12, 31), day(2026, 1, 1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.ReplaceHolidays(context.Background(), stationID, []models.Holiday{
		{Start: day(2025, 12, 24), End: day(2025, 12, 26)},
		{Start: day(2025, 12, 31), End: day(2026, 1, 1)},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceHolidays_RollsBack(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM station_holidays").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := repo.ReplaceHolidays(context.Background(), uuid.New(), nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSampleWindow(t *testing.T) {
	repo, mock := newTestRepository(t)
	stationID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO station_sample_windows (station_id, fleet_category, start_date, end_date, found_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (station_id, fleet_category) DO UPDATE SET start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, found_at = EXCLUDED.found_at")).
		WithArgs(stationID, "van", day(2025, 12, 30), day(2026, 1, 13), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveSampleWindow(context.Background(), models.SampleWindow{
		StationID:     stationID,
		FleetCategory: "van",
		Start:         day(2025, 12, 30),
		End:           day(2026, 1, 13),
		FoundAt:       time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHolidays(t *testing.T) {
	repo, mock := newTestRepository(t)
	stationID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT station_id, start_date, end_date FROM station_holidays WHERE station_id = $1 ORDER BY start_date ASC")).
		WithArgs(stationID).
		WillReturnRows(sqlmock.NewRows([]string{"station_id", "start_date", "end_date"}).
			AddRow(stationID.String(), day(2025, 12, 24), day(2025, 12, 26)))

	holidays, err := repo.Holidays(context.Background(), stationID)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, day(2025, 12, 26), holidays[0].End)
}

func TestSampleWindows(t *testing.T) {
	repo, mock := newTestRepository(t)
	stationID := uuid.New()
	foundAt := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT station_id, fleet_category, start_date, end_date, found_at FROM station_sample_windows WHERE station_id = $1 ORDER BY fleet_category ASC")).
		WithArgs(stationID).
		WillReturnRows(sqlmock.NewRows([]string{"station_id", "fleet_category", "start_date", "end_date", "found_at"}).
			AddRow(stationID.String(), "A", day(2025, 12, 30), day(2026, 1, 13), foundAt).
			AddRow(stationID.String(), "B", day(2026, 1, 6), day(2026, 1, 20), foundAt))

	windows, err := repo.SampleWindows(context.Background(), stationID)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "A", windows[0].FleetCategory)
	assert.Equal(t, day(2025, 12, 30), windows[0].Start)
	assert.Equal(t, day(2026, 1, 20), windows[1].End)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleWindows_Error(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectQuery("SELECT station_id").WillReturnError(errors.New("connection reset"))

	_, err := repo.SampleWindows(context.Background(), uuid.New())
	assert.Error(t, err)
}
