package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWithinTxCommitsNestedWork(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE a")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE b")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := Conn(ctx, db).ExecContext(ctx, "UPDATE a SET x = 1"); err != nil {
			return err
		}
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE b SET x = 1")
			return err
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()
	tx := NewTransactor(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = tx.WithinTx(context.Background(), func(ctx context.Context) error { panic("boom") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnWithoutTxReturnsDB(t *testing.T) {
	db, _, cleanup := newTxMock(t)
	defer cleanup()

	assert.Equal(t, Executor(db), Conn(context.Background(), db))
}
