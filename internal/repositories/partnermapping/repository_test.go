package partnermapping

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

func TestGet(t *testing.T) {
	repo, mock := newTestRepository(t)
	id := uuid.New()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT partner, entity_type, external_id, internal_id, created_at FROM partner_mappings WHERE partner = $1 AND entity_type = $2 AND external_id = $3")).
		WithArgs("atlas", models.EntityTypeCamper, "V-1").
		WillReturnRows(sqlmock.NewRows([]string{"partner", "entity_type", "external_id", "internal_id", "created_at"}).
			AddRow("atlas", "camper", "V-1", id.String(), created))

	got, err := repo.Get(context.Background(), "atlas", models.EntityTypeCamper, "V-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.InternalID)
	assert.Equal(t, models.EntityTypeCamper, got.EntityType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT .* FROM partner_mappings").
		WillReturnRows(sqlmock.NewRows([]string{"partner", "entity_type", "external_id", "internal_id", "created_at"}))

	got, err := repo.Get(context.Background(), "atlas", models.EntityTypeCamper, "V-404")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_Error(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT .* FROM partner_mappings").WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "atlas", models.EntityTypeCamper, "V-1")
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		expected bool
	}{
		{
			name:     "inserted",
			rows:     sqlmock.NewRows([]string{"internal_id"}).AddRow(uuid.New().String()),
			expected: true,
		},
		{
			name:     "conflict does nothing",
			rows:     sqlmock.NewRows([]string{"internal_id"}),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)

			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO partner_mappings (partner, entity_type, external_id, internal_id, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (partner, entity_type, external_id) DO NOTHING RETURNING internal_id")).
				WillReturnRows(tt.rows)

			inserted, err := repo.Insert(context.Background(), "atlas", models.EntityTypeProvider, "P-1", uuid.New())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
