// Package dialect defines the database driver abstraction used by the
// relational store.
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Drivers execute statements with Exec and Query and open transactions with Tx.
// The dialect/sql package implements them on top of database/sql; the
// dialect/sql/sqlgraph package builds the relationship statements; the
// dialect/sql/schema package materializes tables.
package dialect
