package main

import (
	"context"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/relgraph/config"
	"github.com/syssam/relgraph/dialect"
	rsql "github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/store/sqlstore"
)

// database is an open store with the counters of its driver.
type database struct {
	*sqlstore.Store
	stats *rsql.StatsDriver
	close func() error
}

// openStore opens the configured database. Statements slower than the
// default threshold are logged, and every statement is logged at debug level.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*database, error) {
	dsn, err := driverDSN(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	drv, err := rsql.Open(cfg.Dialect, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Dialect == dialect.SQLite {
		// in-memory databases exist per connection.
		drv.DB().SetMaxOpenConns(1)
	}
	var inner dialect.Driver = drv
	if logger.Enabled(ctx, slog.LevelDebug) {
		inner = rsql.NewDebugDriver(drv, logger)
	}
	stats := rsql.NewStatsDriver(inner, rsql.WithSlowQueryLog(logger))
	return &database{
		Store: sqlstore.New(stats, sqlstore.WithLogger(logger)),
		stats: stats,
		close: drv.Close,
	}, nil
}

// driverDSN adjusts a DSN for the store. MySQL reports changed rows as
// affected by default; the store counts matched rows.
func driverDSN(name, dsn string) (string, error) {
	if name != dialect.MySQL {
		return dsn, nil
	}
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ClientFoundRows = true
	c.ParseTime = true
	return c.FormatDSN(), nil
}
