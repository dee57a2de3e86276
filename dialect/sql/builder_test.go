package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph/dialect"
)

func TestBuilder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dialect string
		query   string
		inline  string
	}{
		{
			dialect: dialect.Postgres,
			query:   `SELECT "t1".* FROM "users" AS "t1" WHERE "t1"."id" IN ($1, $2) AND "name" = $3 AND "role_id" IS NULL`,
			inline:  `SELECT "t1".* FROM "users" AS "t1" WHERE "t1"."id" IN (1, 2) AND "name" = 'O''Brien' AND "role_id" IS NULL`,
		},
		{
			dialect: dialect.MySQL,
			query:   "SELECT `t1`.* FROM `users` AS `t1` WHERE `t1`.`id` IN (?, ?) AND `name` = ? AND `role_id` IS NULL",
			inline:  "SELECT `t1`.* FROM `users` AS `t1` WHERE `t1`.`id` IN (1, 2) AND `name` = 'O''Brien' AND `role_id` IS NULL",
		},
		{
			dialect: dialect.SQLite,
			query:   `SELECT "t1".* FROM "users" AS "t1" WHERE "t1"."id" IN (?, ?) AND "name" = ? AND "role_id" IS NULL`,
			inline:  `SELECT "t1".* FROM "users" AS "t1" WHERE "t1"."id" IN (1, 2) AND "name" = 'O''Brien' AND "role_id" IS NULL`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			t.Parallel()
			b := NewBuilder(tt.dialect)
			b.WriteString("SELECT ").Ident("t1.*").
				WriteString(" FROM ").Ident("users").WriteString(" AS ").Ident("t1").
				WriteString(" WHERE ").In("t1.id", 1, 2).
				WriteString(" AND ").Eq("name", "O'Brien").
				WriteString(" AND ").Eq("role_id", nil)
			stmt, err := b.Statement(true)
			require.NoError(t, err)
			assert.Equal(t, tt.query, stmt.Query)
			assert.Equal(t, []any{1, 2, "O'Brien"}, stmt.Args)
			assert.True(t, stmt.Returns)
			assert.Equal(t, tt.inline, stmt.String())
		})
	}
}

func TestBuilderSingleIn(t *testing.T) {
	stmt, err := NewBuilder(dialect.Postgres).WriteString("DELETE FROM ").Ident("links").
		WriteString(" WHERE ").In("a_id", "x").Statement(false)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "links" WHERE "a_id" = $1`, stmt.Query)
}

func TestBuilderInvalidIdentifier(t *testing.T) {
	b := NewBuilder(dialect.SQLite).WriteString("SELECT * FROM ").Ident(`users"; DROP TABLE x; --`)
	require.Error(t, b.Err())
	_, err := b.Statement(true)
	assert.Error(t, err)
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "TRUE", Literal(true))
	assert.Equal(t, "42", Literal(int64(42)))
	assert.Equal(t, "1.5", Literal(1.5))
	assert.Equal(t, `'a\\b'`, Literal(`a\b`))
	assert.Equal(t, "'2024-01-02T03:04:05Z'", Literal(ts))
	assert.Equal(t, "'[1 2]'", Literal([]int{1, 2}))
}

func TestStatementString(t *testing.T) {
	s := Statement{Query: "SELECT 1"}
	assert.Equal(t, "SELECT 1", s.String())
	s = Statement{Query: "SELECT ?", Args: []any{1}}
	assert.Equal(t, "SELECT ? [1]", s.String())
}
