// Package sql implements dialect.Driver on top of database/sql, and provides
// the statement Builder used for every hand-built statement of the store:
// identifier quoting, dialect placeholders and IN/equality predicates.
//
// A driver can be decorated to collect statistics and report slow statements:
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    return err
//	}
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(logger),
//	)
package sql
