package resolve

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/dialect"
	rsql "github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/store"
	"github.com/syssam/relgraph/store/sqlstore"
)

func TestRunJoin(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	g := testGraph(t)
	s := sqlstore.New(rsql.OpenDB(dialect.SQLite, db))
	require.NoError(t, store.Define(s, g))
	r := New(g)

	t.Run("SetMany", func(t *testing.T) {
		res, err := r.ResolveRole("role", "permission", relgraph.OpSetMany)
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "role_permissions" WHERE "role_id" = ?`).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`INSERT INTO "role_permissions" ("role_id", "permission_id") VALUES (?, ?), (?, ?)`).
			WithArgs(1, 2, 1, 3).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()
		_, err = res.Run(ctx, s, 1, 2, 3)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetManyRollback", func(t *testing.T) {
		res, err := r.ResolveRole("role", "permission", relgraph.OpSetMany)
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "role_permissions" WHERE "role_id" = ?`).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "role_permissions" ("role_id", "permission_id") VALUES (?, ?)`).
			WithArgs(1, 9).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()
		_, err = res.Run(ctx, s, 1, 9)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Has", func(t *testing.T) {
		res, err := r.ResolveRole("role", "permission", relgraph.OpHas)
		require.NoError(t, err)
		mock.ExpectQuery(`SELECT COUNT(DISTINCT "permission_id") FROM "role_permissions" WHERE "role_id" = ? AND "permission_id" IN (?, ?)`).
			WithArgs(1, 2, 3).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		ok, err := res.Run(ctx, s, 1, 2, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, false, ok, "one of two distinct ids linked")

		ok, err = res.Run(ctx, s, 1)
		require.NoError(t, err)
		assert.Equal(t, true, ok, "no ids")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Count", func(t *testing.T) {
		res, err := r.ResolveRole("role", "permission", relgraph.OpCount)
		require.NoError(t, err)
		mock.ExpectQuery(`SELECT COUNT(*) FROM "role_permissions" WHERE "role_id" = ?`).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow([]byte("5")))
		n, err := res.Run(ctx, s, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AddNothing", func(t *testing.T) {
		res, err := r.ResolveRole("role", "permission", relgraph.OpAdd)
		require.NoError(t, err)
		_, err = res.Run(ctx, s, 1)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRunLocalKey(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	g := testGraph(t)
	s := sqlstore.New(rsql.OpenDB(dialect.Postgres, db))
	require.NoError(t, store.Define(s, g))
	res, err := New(g).ResolveRole("post", "user", relgraph.OpSet)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "posts" SET "user_id" = $1 WHERE "id" = $2`).
		WithArgs(7, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = res.Run(ctx, s, 1, 7)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "posts" SET "user_id" = $1 WHERE "id" = $2`).
		WithArgs(7, 99).
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = res.Run(ctx, s, 99, 7)
	assert.True(t, relgraph.IsNotFound(err))

	_, err = res.Run(ctx, s, 1, 7, 8)
	assert.Error(t, err, "set takes one id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return sqlstore.New(rsql.OpenDB(dialect.SQLite, db))
}

func TestRunSQLite(t *testing.T) {
	ctx := context.Background()
	g := testGraph(t)
	s := openSQLite(t)
	require.NoError(t, store.Sync(ctx, s, g, false))
	r := New(g)

	run := func(entity, role string, verb relgraph.Op, id any, ids ...any) any {
		t.Helper()
		res, err := r.ResolveRole(entity, role, verb)
		require.NoError(t, err)
		v, err := res.Run(ctx, s, id, ids...)
		require.NoError(t, err)
		return v
	}
	insert := func(entity string, row store.Row) any {
		t.Helper()
		row, err := s.Insert(ctx, entity, row)
		require.NoError(t, err)
		return row["id"]
	}

	u1 := insert("user", store.Row{"username": "ada"})
	u2 := insert("user", store.Row{"username": "bob"})
	r1 := insert("role", store.Row{"name": "admin"})
	r2 := insert("role", store.Row{"name": "guest"})
	p1 := insert("permission", store.Row{"name": "read"})
	p2 := insert("permission", store.Row{"name": "write"})

	t.Run("ToOne", func(t *testing.T) {
		assert.Equal(t, false, run("user", "role", relgraph.OpIsSet, u1))
		assert.Nil(t, run("user", "role", relgraph.OpGet, u1))

		run("user", "role", relgraph.OpSet, u1, r1)
		got := run("user", "role", relgraph.OpGet, u1).(store.Row)
		assert.Equal(t, "admin", got["name"])
		assert.Equal(t, true, run("user", "role", relgraph.OpIs, u1, r1))
		assert.Equal(t, false, run("user", "role", relgraph.OpIs, u1, r2))
		assert.Equal(t, true, run("user", "role", relgraph.OpIsSet, u1))

		run("user", "role", relgraph.OpUnset, u1)
		assert.Equal(t, false, run("user", "role", relgraph.OpIsSet, u1))
		assert.Equal(t, true, run("user", "role", relgraph.OpIs, u1, nil))

		res, err := r.ResolveRole("user", "role", relgraph.OpSet)
		require.NoError(t, err)
		_, err = res.Run(ctx, s, 404, r1)
		assert.True(t, relgraph.IsNotFound(err))
	})

	t.Run("ToMany", func(t *testing.T) {
		run("role", "permission", relgraph.OpAdd, r1, p1, p2)
		assert.Equal(t, int64(2), run("role", "permission", relgraph.OpCount, r1))
		run("role", "permission", relgraph.OpRemove, r1, p1)
		assert.Equal(t, true, run("role", "permission", relgraph.OpHas, r1, p2))
		assert.Equal(t, false, run("role", "permission", relgraph.OpHas, r1, p1))
		assert.Equal(t, false, run("role", "permission", relgraph.OpHas, r1, p1, p2))

		run("role", "permission", relgraph.OpSetMany, r1, p1)
		rows := run("role", "permission", relgraph.OpGetMany, r1).([]store.Row)
		require.Len(t, rows, 1)
		assert.Equal(t, "read", rows[0]["name"])

		// permission -> role is the same join table seen from the other side.
		assert.Equal(t, true, run("permission", "role", relgraph.OpHas, p1, r1))
		assert.Equal(t, int64(0), run("permission", "role", relgraph.OpCount, p2))
	})

	t.Run("Reverse", func(t *testing.T) {
		run("role", "user", relgraph.OpAdd, r2, u1, u2)
		assert.Equal(t, int64(2), run("role", "user", relgraph.OpCount, r2))
		got := run("user", "role", relgraph.OpGet, u2).(store.Row)
		assert.Equal(t, "guest", got["name"])

		run("role", "user", relgraph.OpRemove, r2, u2)
		assert.Equal(t, false, run("user", "role", relgraph.OpIsSet, u2))
	})

	t.Run("Load", func(t *testing.T) {
		run("role", "permission", relgraph.OpSetMany, r2, p1, p2)
		res, err := r.ResolveRole("role", "permission", relgraph.OpGetMany)
		require.NoError(t, err)
		grouped, err := res.Load(ctx, s, r1, r2)
		require.NoError(t, err)
		assert.Len(t, grouped[store.Key(r1)], 1)
		assert.Len(t, grouped[store.Key(r2)], 2)
		for _, rows := range grouped {
			for _, row := range rows {
				assert.NotContains(t, row, "__owner")
			}
		}

		empty, err := res.Load(ctx, s)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
