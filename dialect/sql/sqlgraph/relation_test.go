package sqlgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
)

// user belongsTo role: the owner row (user) carries role_id.
func localKey(d string) *Relation {
	return &Relation{Dialect: d, Shape: LocalKey, OwnerTable: "users", OwnerID: "id", OtherTable: "roles", OtherID: "id", Column: "role_id"}
}

// role seen from the role side of user belongsTo role: other rows (users) carry role_id.
func remoteKey(d string) *Relation {
	return &Relation{Dialect: d, Shape: RemoteKey, OwnerTable: "roles", OwnerID: "id", OtherTable: "users", OtherID: "id", Column: "role_id"}
}

// role belongsToMany permission through role_permissions.
func join(d string) *Relation {
	return &Relation{
		Dialect: d, Shape: Join,
		OwnerTable: "roles", OwnerID: "id", OtherTable: "permissions", OtherID: "id",
		JoinTable: "role_permissions", OwnerCol: "role_id", OtherCol: "permission_id",
	}
}

func TestRelationStatements(t *testing.T) {
	t.Parallel()
	type build func(*Relation) (sql.Statement, error)
	tests := []struct {
		name    string
		rel     *Relation
		build   build
		query   string
		args    []any
		returns bool
	}{
		{
			name:  "local/clear",
			rel:   localKey(dialect.SQLite),
			build: func(r *Relation) (sql.Statement, error) { return r.Clear("u1") },
			query: `UPDATE "users" SET "role_id" = NULL WHERE "id" = ?`,
			args:  []any{"u1"},
		},
		{
			name:  "local/add",
			rel:   localKey(dialect.Postgres),
			build: func(r *Relation) (sql.Statement, error) { return r.Add("u1", "r1") },
			query: `UPDATE "users" SET "role_id" = $1 WHERE "id" = $2`,
			args:  []any{"r1", "u1"},
		},
		{
			name:  "local/remove",
			rel:   localKey(dialect.SQLite),
			build: func(r *Relation) (sql.Statement, error) { return r.Remove("u1", "r1") },
			query: `UPDATE "users" SET "role_id" = NULL WHERE "id" = ? AND "role_id" = ?`,
			args:  []any{"u1", "r1"},
		},
		{
			name:    "local/has",
			rel:     localKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Has("u1", "r1") },
			query:   `SELECT COUNT(DISTINCT "role_id") FROM "users" WHERE "id" = ? AND "role_id" = ?`,
			args:    []any{"u1", "r1"},
			returns: true,
		},
		{
			name:    "local/get",
			rel:     localKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Get("u1") },
			query:   `SELECT * FROM "roles" WHERE "id" IN (SELECT "role_id" FROM "users" WHERE "id" = ?)`,
			args:    []any{"u1"},
			returns: true,
		},
		{
			name:    "local/count",
			rel:     localKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Count("u1") },
			query:   `SELECT COUNT(*) FROM "users" WHERE "id" = ? AND "role_id" IS NOT NULL`,
			args:    []any{"u1"},
			returns: true,
		},
		{
			name:    "local/getMany",
			rel:     localKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.GetMany("u1", "u2") },
			query:   `SELECT "t1".*, "t2"."id" AS "__owner" FROM "roles" AS "t1" JOIN "users" AS "t2" ON "t2"."role_id" = "t1"."id" WHERE "t2"."id" IN (?, ?)`,
			args:    []any{"u1", "u2"},
			returns: true,
		},
		{
			name:  "remote/clear",
			rel:   remoteKey(dialect.SQLite),
			build: func(r *Relation) (sql.Statement, error) { return r.Clear(1) },
			query: `UPDATE "users" SET "role_id" = NULL WHERE "role_id" = ?`,
			args:  []any{1},
		},
		{
			name:  "remote/add",
			rel:   remoteKey(dialect.Postgres),
			build: func(r *Relation) (sql.Statement, error) { return r.Add(1, "u1", "u2") },
			query: `UPDATE "users" SET "role_id" = $1 WHERE "id" IN ($2, $3)`,
			args:  []any{1, "u1", "u2"},
		},
		{
			name:  "remote/remove",
			rel:   remoteKey(dialect.MySQL),
			build: func(r *Relation) (sql.Statement, error) { return r.Remove(1, "u1") },
			query: "UPDATE `users` SET `role_id` = NULL WHERE `role_id` = ? AND `id` = ?",
			args:  []any{1, "u1"},
		},
		{
			name:    "remote/has",
			rel:     remoteKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Has(1, "u1", "u2") },
			query:   `SELECT COUNT(DISTINCT "id") FROM "users" WHERE "role_id" = ? AND "id" IN (?, ?)`,
			args:    []any{1, "u1", "u2"},
			returns: true,
		},
		{
			name:    "remote/get",
			rel:     remoteKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Get(1) },
			query:   `SELECT * FROM "users" WHERE "role_id" = ?`,
			args:    []any{1},
			returns: true,
		},
		{
			name:    "remote/count",
			rel:     remoteKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Count(1) },
			query:   `SELECT COUNT(*) FROM "users" WHERE "role_id" = ?`,
			args:    []any{1},
			returns: true,
		},
		{
			name:    "remote/getMany",
			rel:     remoteKey(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.GetMany(1) },
			query:   `SELECT "t1".*, "t1"."role_id" AS "__owner" FROM "users" AS "t1" WHERE "t1"."role_id" = ?`,
			args:    []any{1},
			returns: true,
		},
		{
			name:  "join/clear",
			rel:   join(dialect.SQLite),
			build: func(r *Relation) (sql.Statement, error) { return r.Clear(1) },
			query: `DELETE FROM "role_permissions" WHERE "role_id" = ?`,
			args:  []any{1},
		},
		{
			name:  "join/add",
			rel:   join(dialect.Postgres),
			build: func(r *Relation) (sql.Statement, error) { return r.Add(1, 10, 11) },
			query: `INSERT INTO "role_permissions" ("role_id", "permission_id") VALUES ($1, $2), ($3, $4)`,
			args:  []any{1, 10, 1, 11},
		},
		{
			name:  "join/remove",
			rel:   join(dialect.SQLite),
			build: func(r *Relation) (sql.Statement, error) { return r.Remove(1, 10, 11) },
			query: `DELETE FROM "role_permissions" WHERE "role_id" = ? AND "permission_id" IN (?, ?)`,
			args:  []any{1, 10, 11},
		},
		{
			name:    "join/has",
			rel:     join(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Has(1, 10) },
			query:   `SELECT COUNT(DISTINCT "permission_id") FROM "role_permissions" WHERE "role_id" = ? AND "permission_id" = ?`,
			args:    []any{1, 10},
			returns: true,
		},
		{
			name:    "join/get",
			rel:     join(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Get(1) },
			query:   `SELECT "t1".* FROM "permissions" AS "t1" JOIN "role_permissions" AS "t2" ON "t2"."permission_id" = "t1"."id" WHERE "t2"."role_id" = ?`,
			args:    []any{1},
			returns: true,
		},
		{
			name:    "join/count",
			rel:     join(dialect.SQLite),
			build:   func(r *Relation) (sql.Statement, error) { return r.Count(1) },
			query:   `SELECT COUNT(*) FROM "role_permissions" WHERE "role_id" = ?`,
			args:    []any{1},
			returns: true,
		},
		{
			name:    "join/getMany",
			rel:     join(dialect.MySQL),
			build:   func(r *Relation) (sql.Statement, error) { return r.GetMany(1, 2) },
			query:   "SELECT `t1`.*, `t2`.`role_id` AS `__owner` FROM `permissions` AS `t1` JOIN `role_permissions` AS `t2` ON `t2`.`permission_id` = `t1`.`id` WHERE `t2`.`role_id` IN (?, ?)",
			args:    []any{1, 2},
			returns: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stmt, err := tt.build(tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.query, stmt.Query)
			assert.Equal(t, tt.args, stmt.Args)
			assert.Equal(t, tt.returns, stmt.Returns)
		})
	}
}

func TestRelationInline(t *testing.T) {
	stmt, err := join(dialect.Postgres).Add("r'1", "p1")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "role_permissions" ("role_id", "permission_id") VALUES ('r''1', 'p1')`, stmt.String())
}

func TestRelationErrors(t *testing.T) {
	_, err := localKey(dialect.SQLite).Add("u1", "r1", "r2")
	assert.ErrorContains(t, err, "holds a single reference")

	for _, r := range []*Relation{localKey(dialect.SQLite), remoteKey(dialect.SQLite), join(dialect.SQLite)} {
		_, err = r.Add(1)
		assert.ErrorIs(t, err, ErrNoIDs)
		_, err = r.Remove(1)
		assert.ErrorIs(t, err, ErrNoIDs)
		_, err = r.Has(1)
		assert.ErrorIs(t, err, ErrNoIDs)
		_, err = r.GetMany()
		assert.ErrorIs(t, err, ErrNoIDs)
	}

	bad := join(dialect.SQLite)
	bad.JoinTable = ""
	_, err = bad.Get(1)
	assert.ErrorContains(t, err, "misses its join table")

	bad = remoteKey(dialect.SQLite)
	bad.Column = ""
	_, err = bad.Count(1)
	assert.ErrorContains(t, err, "misses its column")

	_, err = (&Relation{}).Clear(1)
	assert.ErrorContains(t, err, "invalid relation shape")

	bad = localKey(dialect.SQLite)
	bad.OtherTable = "roles; --"
	_, err = bad.Get(1)
	assert.ErrorContains(t, err, "invalid identifier")
}
