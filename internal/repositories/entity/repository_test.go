package entity

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
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

func TestInsert_WritesEveryColumnIncludingNulls(t *testing.T) {
	repo, mock := newTestRepository(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campers (id, name, seats, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(id, "Nomad", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), models.EntityTypeCamper, id, map[string]any{"seats": nil, "name": "Nomad"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "duplicate id", err: &pq.Error{Code: "23505"}, status: http.StatusConflict},
		{name: "storage failure", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			mock.ExpectExec("INSERT INTO providers").WillReturnError(tt.err)

			err := repo.Insert(context.Background(), models.EntityTypeProvider, uuid.New(), map[string]any{"name": "Sunliner"})
			require.Error(t, err)
			assert.Equal(t, tt.status, httperror.GetStatusCode(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsert_UnknownEntityType(t *testing.T) {
	repo, _ := newTestRepository(t)
	err := repo.Insert(context.Background(), models.EntityType("boat"), uuid.New(), map[string]any{})
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "row updated", affected: 1, want: true},
		{name: "row missing", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			id := uuid.New()

			mock.ExpectExec(regexp.QuoteMeta("UPDATE providers SET logo_url = $1, name = $2, updated_at = $3 WHERE id = $4")).
				WithArgs(nil, "Sunliner", sqlmock.AnyArg(), id).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.Update(context.Background(), models.EntityTypeProvider, id, map[string]any{"name": "Sunliner", "logo_url": nil})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdate_Error(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec("UPDATE stations").WillReturnError(errors.New("deadlock detected"))

	_, err := repo.Update(context.Background(), models.EntityTypeStation, uuid.New(), map[string]any{"name": "Munich"})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	repo, mock := newTestRepository(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM providers WHERE name IS NOT NULL ORDER BY created_at ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(a.String(), "Sunliner").
			AddRow(b.String(), "Roadhouse"))

	rows, err := repo.Names(context.Background(), models.EntityTypeProvider)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, a, rows[0].ID)
	assert.Equal(t, "Roadhouse", *rows[1].Name)
}
