package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/relgraph/dialect"
)

// Kind classifies a statement by its leading keyword.
type Kind uint8

// Statement kinds.
const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
	numKinds
)

var kindNames = [numKinds]string{"other", "select", "insert", "update", "delete", "ddl"}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Classify returns the kind of the statement.
func Classify(query string) Kind {
	query = strings.TrimLeft(query, " \t\r\n(")
	word := query
	if i := strings.IndexAny(query, " \t\r\n("); i >= 0 {
		word = query[:i]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH":
		return KindSelect
	case "INSERT", "REPLACE":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		return KindDDL
	default:
		return KindOther
	}
}

// QueryStats counts the statements sent through a StatsDriver.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	kinds    [numKinds]atomic.Int64
	rows     atomic.Int64
	duration atomic.Int64
	slow     atomic.Int64
	errors   atomic.Int64
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		TotalQueries:  s.queries.Load(),
		TotalExecs:    s.execs.Load(),
		RowsAffected:  s.rows.Load(),
		TotalDuration: time.Duration(s.duration.Load()),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errors.Load(),
	}
	for k := range s.kinds {
		snap.Statements[k] = s.kinds[k].Load()
	}
	return snap
}

// Reset sets all counters to zero.
func (s *QueryStats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	for k := range s.kinds {
		s.kinds[k].Store(0)
	}
	s.rows.Store(0)
	s.duration.Store(0)
	s.slow.Store(0)
	s.errors.Store(0)
}

func (s *QueryStats) add(query string, isQuery bool, duration time.Duration, rows int64, err error) {
	if isQuery {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.kinds[Classify(query)].Add(1)
	s.rows.Add(rows)
	s.duration.Add(int64(duration))
	if err != nil {
		s.errors.Add(1)
	}
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries int64
	TotalExecs   int64
	// Statements is indexed by Kind.
	Statements    [numKinds]int64
	RowsAffected  int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// Count returns the number of statements of the given kind.
func (s StatsSnapshot) Count(k Kind) int64 {
	if k >= numKinds {
		return 0
	}
	return s.Statements[k]
}

// AvgDuration returns the average statement duration.
func (s StatsSnapshot) AvgDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

func (s StatsSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queries=%d execs=%d", s.TotalQueries, s.TotalExecs)
	for k := KindSelect; k < numKinds; k++ {
		if n := s.Statements[k]; n > 0 {
			fmt.Fprintf(&b, " %s=%d", k, n)
		}
	}
	fmt.Fprintf(&b, " rows=%d duration=%s avg=%s slow=%d errors=%d",
		s.RowsAffected, s.TotalDuration, s.AvgDuration(), s.SlowQueries, s.Errors)
	return b.String()
}

// SlowQueryHook is called when a statement exceeds the slow threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a dialect.Driver with statement counters.
type StatsDriver struct {
	dialect.Driver
	stats    *QueryStats
	mu       sync.RWMutex
	slow     time.Duration
	slowHook SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the slow statement threshold. Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.slow = d }
}

// WithSlowQueryHook sets a callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) { s.slowHook = hook }
}

// WithSlowQueryLog logs slow statements as warnings.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		logger.WarnContext(ctx, "slow query detected",
			"kind", Classify(query).String(), "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statement counters.
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}, slow: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the current slow threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slow
}

// SetSlowThreshold updates the slow threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slow = threshold
}

// Query implements the dialect.Query method.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.query(ctx, d.Driver, query, args, v)
}

// Exec implements the dialect.Exec method. Affected rows are counted when
// the underlying driver reports them.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.exec(ctx, d.Driver, query, args, v)
}

func (d *StatsDriver) query(ctx context.Context, eq dialect.ExecQuerier, query string, args, v any) error {
	start := time.Now()
	err := eq.Query(ctx, query, args, v)
	d.record(ctx, query, args, true, time.Since(start), 0, err)
	return err
}

func (d *StatsDriver) exec(ctx context.Context, eq dialect.ExecQuerier, query string, args, v any) error {
	var res sql.Result
	if v == nil {
		v = &res
	}
	start := time.Now()
	err := eq.Exec(ctx, query, args, v)
	duration := time.Since(start)
	var rows int64
	if r, ok := v.(*sql.Result); ok && err == nil && *r != nil {
		if n, rerr := (*r).RowsAffected(); rerr == nil {
			rows = n
		}
	}
	d.record(ctx, query, args, false, duration, rows, err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, isQuery bool, duration time.Duration, rows int64, err error) {
	d.stats.add(query, isQuery, duration, rows, err)
	d.mu.RLock()
	threshold, hook := d.slow, d.slowHook
	d.mu.RUnlock()
	if duration <= threshold {
		return
	}
	d.stats.slow.Add(1)
	if hook != nil {
		argv, _ := args.([]any)
		hook(ctx, query, argv, duration)
	}
}

// Tx starts a transaction whose statements are counted too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query implements the dialect.Query method.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.query(ctx, tx.Tx, query, args, v)
}

// Exec implements the dialect.Exec method.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.exec(ctx, tx.Tx, query, args, v)
}

// DebugDriver logs every statement at debug level, after it ran.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// NewDebugDriver wraps drv with statement logging.
func NewDebugDriver(drv dialect.Driver, logger *slog.Logger) *DebugDriver {
	return &DebugDriver{Driver: drv, logger: logger}
}

func logStatement(ctx context.Context, logger *slog.Logger, msg, query string, args any, start time.Time, err error) {
	attrs := []any{"kind", Classify(query).String(), "sql", query, "args", args, "duration", time.Since(start)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.DebugContext(ctx, msg, attrs...)
}

func logEnd(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.DebugContext(ctx, msg, "error", err)
		return
	}
	logger.DebugContext(ctx, msg)
}

// Query implements the dialect.Query method.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	logStatement(ctx, d.logger, "query", query, args, start, err)
	return err
}

// Exec implements the dialect.Exec method.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	logStatement(ctx, d.logger, "exec", query, args, start, err)
	return err
}

// Tx starts a transaction with statement logging.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	logEnd(ctx, d.logger, "begin transaction", err)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, ctx: ctx, logger: d.logger}, nil
}

// DebugTx is a transaction of a DebugDriver.
type DebugTx struct {
	dialect.Tx
	ctx    context.Context
	logger *slog.Logger
}

// Query implements the dialect.Query method.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	logStatement(ctx, tx.logger, "tx query", query, args, start, err)
	return err
}

// Exec implements the dialect.Exec method.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	logStatement(ctx, tx.logger, "tx exec", query, args, start, err)
	return err
}

// Commit commits the transaction.
func (tx *DebugTx) Commit() error {
	err := tx.Tx.Commit()
	logEnd(tx.ctx, tx.logger, "commit transaction", err)
	return err
}

// Rollback rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	err := tx.Tx.Rollback()
	logEnd(tx.ctx, tx.logger, "rollback transaction", err)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
