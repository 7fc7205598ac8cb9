package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/repository"
)

var _ repository.WatermarkRepository = (*WatermarkRepo)(nil)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const (
	selectMark = `SELECT row_id FROM journal_watermarks WHERE consumer=\$1`
	upsertMark = `INSERT INTO journal_watermarks \(consumer, row_id, updated_at\)`
)

func TestWatermarkRepo_Load(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWatermarkRepo(db, "watch")
	ctx := context.Background()

	mock.ExpectQuery(selectMark).
		WithArgs("watch").
		WillReturnRows(pgxmock.NewRows([]string{"row_id"}).AddRow(int64(42)))
	got, err := r.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(42), got)

	mock.ExpectQuery(selectMark).
		WithArgs("watch").
		WillReturnError(pgx.ErrNoRows)
	got, err = r.Load(ctx)
	require.NoError(t, err)
	require.Zero(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWatermarkRepo_Load_Errors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWatermarkRepo(db, "watch")
	ctx := context.Background()

	mock.ExpectQuery(selectMark).
		WithArgs("watch").
		WillReturnError(&pgconn.PgError{Code: "42P01"})
	_, err := r.Load(ctx)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	boom := errors.New("conn reset")
	mock.ExpectQuery(selectMark).
		WithArgs("watch").
		WillReturnError(boom)
	_, err = r.Load(ctx)
	require.ErrorIs(t, err, boom)
}

func TestWatermarkRepo_Save(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWatermarkRepo(db, "watch")
	ctx := context.Background()

	mock.ExpectExec(upsertMark).
		WithArgs("watch", int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Save(ctx, 7))

	mock.ExpectExec(upsertMark).
		WithArgs("watch", int64(8)).
		WillReturnError(&pgconn.PgError{Code: "42P01"})
	require.ErrorIs(t, r.Save(ctx, 8), errs.ErrConfiguration)

	require.NoError(t, mock.ExpectationsWereMet())
}
