package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger), mock
}

func TestRunInTx_Commits(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM station_holidays").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := db.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := Conn(ctx, db).ExecContext(ctx, "DELETE FROM station_holidays")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := db.RunInTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_NestedSharesOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO b").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := db.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := Conn(ctx, db).ExecContext(ctx, "INSERT INTO a"); err != nil {
			return err
		}
		return db.RunInTx(ctx, func(ctx context.Context) error {
			_, err := Conn(ctx, db).ExecContext(ctx, "INSERT INTO b")
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSession_ReleaseIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, release, err := db.OpenSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sessionFromContext(ctx))

	_, err = Conn(ctx, db).ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)

	release()
	release()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_FallsBackToPool(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Equal(t, db, Conn(context.Background(), db))
}
