package sql

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph/dialect"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(time.Hour),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectExec("UPDATE").WillReturnError(errors.New("locked"))
	require.Error(t, drv.Exec(ctx, "UPDATE users SET a = 1", []any{}, nil))

	drv.SetSlowThreshold(-1)
	assert.Equal(t, time.Duration(-1), drv.SlowThreshold())
	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "DELETE FROM users", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.SlowQueries)
	assert.Equal(t, []string{"DELETE FROM users"}, slow)
	assert.Equal(t, int64(1), s.Count(KindSelect))
	assert.Equal(t, int64(1), s.Count(KindUpdate))
	assert.Equal(t, int64(1), s.Count(KindDelete))
	assert.Zero(t, s.Count(KindInsert))
	assert.Equal(t, int64(1), s.RowsAffected, "failed statements affect no rows")
	assert.Contains(t, s.String(), "queries=1 execs=2 select=1 update=1 delete=1 rows=1 ")

	drv.QueryStats().Reset()
	assert.Equal(t, StatsSnapshot{}, drv.QueryStats().Stats())
	assert.Zero(t, StatsSnapshot{}.AvgDuration())
}

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"SELECT 1":                             KindSelect,
		"  (select * from users) UNION ...":    KindSelect,
		"WITH t AS (SELECT 1) SELECT * FROM t": KindSelect,
		"INSERT INTO users DEFAULT VALUES":     KindInsert,
		"update users set a = 1":               KindUpdate,
		"DELETE FROM users":                    KindDelete,
		"CREATE TABLE users (id INTEGER)":      KindDDL,
		"DROP TABLE IF EXISTS users":           KindDDL,
		"PRAGMA foreign_keys = ON":             KindOther,
		"":                                     KindOther,
	}
	for query, want := range tests {
		assert.Equal(t, want, Classify(query), query)
	}
	assert.Equal(t, "delete", KindDelete.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Zero(t, StatsSnapshot{}.Count(Kind(42)))
}

func TestStatsDriverResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(dialect.SQLite, db))
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(7, 3))
	var res sql.Result
	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO users (a) VALUES (1), (2), (3)", []any{}, &res))
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id, "the caller's result is filled")
	assert.Equal(t, int64(3), drv.QueryStats().Stats().RowsAffected)
	assert.Equal(t, int64(1), drv.QueryStats().Stats().Count(KindInsert))
}

func TestSlowQueryLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db), WithSlowThreshold(-1), WithSlowQueryLog(logger))
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil))
	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "DELETE FROM users")
	assert.Contains(t, buf.String(), "kind=delete")
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.SQLite, db), logger)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO users DEFAULT VALUES", []any{}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "begin transaction")
	assert.Contains(t, out, "INSERT INTO users DEFAULT VALUES")
	assert.Contains(t, out, "rollback transaction")
	assert.Contains(t, out, "kind=insert")

	buf.Reset()
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("no such table"))
	require.Error(t, drv.Query(ctx, "SELECT * FROM ghosts", []any{}, &Rows{}))
	assert.Contains(t, buf.String(), "no such table")
}
