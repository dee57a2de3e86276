// Package sqlstore implements store.Store on a dialect.Driver.
package sqlstore

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/contrib/dataloader"
	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
	sqlschema "github.com/syssam/relgraph/dialect/sql/schema"
	"github.com/syssam/relgraph/dialect/sql/sqlgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/field"
	"github.com/syssam/relgraph/store"
)

// Store is a store.Store backed by a SQL database.
type Store struct {
	drv    dialect.Driver
	ex     dialect.ExecQuerier
	tx     dialect.Tx
	defs   *definitions
	logger *slog.Logger
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger statements are traced to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the generator of UUID identities. Defaults to uuid.NewString.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New returns a Store on the driver.
func New(drv dialect.Driver, opts ...Option) *Store {
	s := &Store{
		drv:    drv,
		ex:     drv,
		defs:   &definitions{entities: make(map[string]*schema.Entity)},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect implements store.Store.
func (s *Store) Dialect() string { return s.drv.Dialect() }

// DefineEntity implements store.Store. Defining an entity again replaces it.
func (s *Store) DefineEntity(e *graph.Entity) error {
	if e == nil || e.Name == "" {
		return relgraph.NewConfigurationError("store", "entity without a name")
	}
	return s.defs.entity(&schema.Entity{
		Name:       e.Name,
		Attributes: e.Attributes,
		Meta:       schema.Meta{IDField: e.IDField},
	})
}

// DefineRelationship implements store.Store. Both ends must be defined.
func (s *Store) DefineRelationship(e *graph.Edge) error {
	return s.defs.edge(e)
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, entity string, f store.Filter) ([]store.Row, error) {
	ent, cols, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	b := sql.NewBuilder(s.Dialect())
	b.WriteString("SELECT * FROM ").Ident(ent.Table)
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		c, ok := cols[k]
		if !ok {
			return nil, relgraph.NewQueryError(entity, "select", fmt.Errorf("unknown column %q", k))
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		vs, isList := list(f[k])
		switch {
		case isList && len(vs) == 0:
			return nil, nil
		case isList:
			for j := range vs {
				if vs[j], err = c.Type.Value(vs[j]); err != nil {
					return nil, relgraph.NewQueryError(entity, "select", err)
				}
			}
			b.In(k, vs...)
		default:
			v, err := c.Type.Value(f[k])
			if err != nil {
				return nil, relgraph.NewQueryError(entity, "select", err)
			}
			b.Eq(k, v)
		}
	}
	stmt, err := b.Statement(true)
	if err != nil {
		return nil, relgraph.NewQueryError(entity, "select", err)
	}
	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, relgraph.NewQueryError(entity, "select", err)
	}
	return normalize(rows, cols), nil
}

// Insert implements store.Store. A missing UUID identity is generated and
// attribute defaults are applied before the row is written.
func (s *Store) Insert(ctx context.Context, entity string, data store.Row) (store.Row, error) {
	ent, cols, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	row, err := s.prepare(ent, cols, data)
	if err != nil {
		return nil, relgraph.NewMutationError(entity, "insert", err)
	}
	b := insert(s.Dialect(), ent, columnsOf(ent, []store.Row{row}), []store.Row{row})
	id, hasID := row[ent.IDField]
	switch {
	case hasID:
		stmt, err := b.Statement(false)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
		if _, err := s.exec(ctx, stmt); err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", sqlgraph.Classify(err))
		}
	case s.Dialect() == dialect.Postgres:
		b.WriteString(" RETURNING ").Ident(ent.IDField)
		stmt, err := b.Statement(true)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
		rows, err := s.query(ctx, stmt)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", sqlgraph.Classify(err))
		}
		if len(rows) != 1 {
			return nil, relgraph.NewMutationError(entity, "insert", fmt.Errorf("expected one returned id, got %d", len(rows)))
		}
		id = rows[0][ent.IDField]
	default:
		stmt, err := b.Statement(false)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
		res, err := s.exec(ctx, stmt)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", sqlgraph.Classify(err))
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
	}
	return s.fetch(ctx, ent, id)
}

// BulkInsert implements store.Store. Rows are written with one statement.
// Generated integer identities are read back with RETURNING on PostgreSQL
// and derived from the last insert id on SQLite and MySQL. Rows mixing given
// and generated identities are inserted one by one.
func (s *Store) BulkInsert(ctx context.Context, entity string, data []store.Row) ([]store.Row, error) {
	if len(data) == 0 {
		return nil, nil
	}
	ent, cols, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	rows := make([]store.Row, len(data))
	given := 0
	for i, d := range data {
		if rows[i], err = s.prepare(ent, cols, d); err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
		if _, ok := rows[i][ent.IDField]; ok {
			given++
		}
	}
	names := columnsOf(ent, rows)
	switch {
	case given > 0 && given < len(rows),
		given == 0 && ent.IDType() != field.TypeInt,
		len(names) == 0 && len(rows) > 1:
		return s.insertEach(ctx, entity, data)
	}
	b := insert(s.Dialect(), ent, names, rows)
	var ids []any
	if given > 0 {
		ids = make([]any, len(rows))
		for i, r := range rows {
			ids[i] = r[ent.IDField]
		}
		stmt, err := b.Statement(false)
		if err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", err)
		}
		if _, err := s.exec(ctx, stmt); err != nil {
			return nil, relgraph.NewMutationError(entity, "insert", sqlgraph.Classify(err))
		}
	} else if ids, err = s.insertGenerated(ctx, ent, b, len(rows)); err != nil {
		return nil, relgraph.NewMutationError(entity, "insert", sqlgraph.Classify(err))
	}
	stored, err := s.Query(ctx, entity, store.Filter{ent.IDField: ids})
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.Key(id)
	}
	out, errs := dataloader.OrderByKeys(keys, stored, func(r store.Row) string { return store.Key(r[ent.IDField]) })
	for i, err := range errs {
		if err != nil {
			return nil, relgraph.NewNotFoundErrorWithID(entity, ids[i])
		}
	}
	return out, nil
}

// insertGenerated runs a multi-row insert of n rows without identities and
// returns the generated ids in row order. MySQL reports the first id of the
// statement and SQLite the last; both hand out consecutive ids to a single
// statement.
func (s *Store) insertGenerated(ctx context.Context, ent *graph.Entity, b *sql.Builder, n int) ([]any, error) {
	ids := make([]any, n)
	if s.Dialect() == dialect.Postgres {
		b.WriteString(" RETURNING ").Ident(ent.IDField)
		stmt, err := b.Statement(true)
		if err != nil {
			return nil, err
		}
		rows, err := s.query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		if len(rows) != n {
			return nil, fmt.Errorf("expected %d returned ids, got %d", n, len(rows))
		}
		for i, r := range rows {
			ids[i] = r[ent.IDField]
		}
		return ids, nil
	}
	stmt, err := b.Statement(false)
	if err != nil {
		return nil, err
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return nil, err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if s.Dialect() == dialect.SQLite {
		first -= int64(n - 1)
	}
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

func (s *Store) insertEach(ctx context.Context, entity string, data []store.Row) ([]store.Row, error) {
	out := make([]store.Row, 0, len(data))
	for _, d := range data {
		row, err := s.Insert(ctx, entity, d)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, entity string, id any, data store.Row) (int64, error) {
	ent, cols, err := s.table(entity)
	if err != nil {
		return 0, err
	}
	set, err := values(cols, data)
	if err != nil {
		return 0, relgraph.NewMutationError(entity, "update", err)
	}
	delete(set, ent.IDField)
	if len(set) == 0 {
		return 0, nil
	}
	b := sql.NewBuilder(s.Dialect())
	b.WriteString("UPDATE ").Ident(ent.Table).WriteString(" SET ")
	for i, c := range columnsOf(ent, []store.Row{set}) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(set[c])
	}
	b.WriteString(" WHERE ").Eq(ent.IDField, id)
	stmt, err := b.Statement(false)
	if err != nil {
		return 0, relgraph.NewMutationError(entity, "update", err)
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, relgraph.NewMutationError(entity, "update", sqlgraph.Classify(err))
	}
	return res.RowsAffected()
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, entity string, id any) (bool, error) {
	ent, _, err := s.table(entity)
	if err != nil {
		return false, err
	}
	b := sql.NewBuilder(s.Dialect())
	b.WriteString("DELETE FROM ").Ident(ent.Table).WriteString(" WHERE ").Eq(ent.IDField, id)
	stmt, err := b.Statement(false)
	if err != nil {
		return false, relgraph.NewMutationError(entity, "delete", err)
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return false, relgraph.NewMutationError(entity, "delete", sqlgraph.Classify(err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExecuteRaw implements store.Store.
func (s *Store) ExecuteRaw(ctx context.Context, entity string, stmt sql.Statement) (*store.Result, error) {
	var cols map[string]*graph.Column
	if entity != "" {
		var err error
		if _, cols, err = s.table(entity); err != nil {
			return nil, err
		}
	}
	if stmt.Returns {
		rows, err := s.query(ctx, stmt)
		if err != nil {
			return nil, relgraph.NewQueryError(entity, "raw", sqlgraph.Classify(err))
		}
		return &store.Result{Rows: normalize(rows, cols)}, nil
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return nil, relgraph.NewMutationError(entity, "raw", sqlgraph.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	return &store.Result{Affected: n}, nil
}

// QueryInt64 implements store.ScalarQuerier.
func (s *Store) QueryInt64(ctx context.Context, stmt sql.Statement) (int64, error) {
	s.logger.DebugContext(ctx, "query", "statement", stmt.String())
	var rows sql.Rows
	if err := s.ex.Query(ctx, stmt.Query, stmt.Args, &rows); err != nil {
		return 0, relgraph.NewQueryError("", "scalar", sqlgraph.Classify(err))
	}
	n, err := sql.ScanInt64(rows)
	if err != nil {
		return 0, relgraph.NewQueryError("", "scalar", err)
	}
	return n, nil
}

// Sync implements store.Store.
func (s *Store) Sync(ctx context.Context, force bool, onEntity func(string), onRelationship func(source, target, alias string)) error {
	model, err := s.defs.graph()
	if err != nil {
		return err
	}
	tables, err := sqlschema.Tables(model, s.Dialect())
	if err != nil {
		return err
	}
	m, err := sqlschema.NewMigrate(sql.Std{ExecQuerier: s.ex, Name: s.Dialect()},
		sqlschema.WithDropTables(force),
		sqlschema.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	if err := m.Create(ctx, tables...); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "store synced", "tables", len(tables), "force", force)
	for _, e := range model.Sorted() {
		if onEntity != nil {
			onEntity(e.Name)
		}
	}
	for _, e := range s.defs.edgeList() {
		if onRelationship != nil {
			onRelationship(e.Source, e.Target, e.Alias)
		}
	}
	return nil
}

// Tx implements store.Store.
func (s *Store) Tx(ctx context.Context, fn func(context.Context, store.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return err
	}
	child := *s
	child.ex, child.tx = tx, tx
	if err := fn(ctx, &child); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w: %w", err, &relgraph.RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) table(entity string) (*graph.Entity, map[string]*graph.Column, error) {
	model, err := s.defs.graph()
	if err != nil {
		return nil, nil, err
	}
	ent, err := model.Entity(entity)
	if err != nil {
		return nil, nil, err
	}
	list, err := model.Columns(entity)
	if err != nil {
		return nil, nil, err
	}
	cols := make(map[string]*graph.Column, len(list))
	for _, c := range list {
		cols[c.Name] = c
	}
	return ent, cols, nil
}

func (s *Store) fetch(ctx context.Context, ent *graph.Entity, id any) (store.Row, error) {
	rows, err := s.Query(ctx, ent.Name, store.Filter{ent.IDField: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, relgraph.NewNotFoundErrorWithID(ent.Name, id)
	}
	return rows[0], nil
}

func (s *Store) prepare(ent *graph.Entity, cols map[string]*graph.Column, data store.Row) (store.Row, error) {
	row, err := values(cols, data)
	if err != nil {
		return nil, err
	}
	for name, c := range cols {
		if _, ok := row[name]; !ok && c.Default != nil {
			row[name] = c.Default
		}
	}
	if id, ok := row[ent.IDField]; ok && id == nil {
		delete(row, ent.IDField)
	}
	if _, ok := row[ent.IDField]; !ok && ent.IDType() == field.TypeUUID {
		row[ent.IDField] = s.newID()
	}
	return row, nil
}

func (s *Store) query(ctx context.Context, stmt sql.Statement) ([]map[string]any, error) {
	s.logger.DebugContext(ctx, "query", "statement", stmt.String())
	var rows sql.Rows
	if err := s.ex.Query(ctx, stmt.Query, stmt.Args, &rows); err != nil {
		return nil, err
	}
	return sql.ScanMaps(rows)
}

func (s *Store) exec(ctx context.Context, stmt sql.Statement) (stdsql.Result, error) {
	s.logger.DebugContext(ctx, "exec", "statement", stmt.String())
	var res stdsql.Result
	if err := s.ex.Exec(ctx, stmt.Query, stmt.Args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func values(cols map[string]*graph.Column, data store.Row) (store.Row, error) {
	out := make(store.Row, len(data))
	for k, v := range data {
		c, ok := cols[k]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", k)
		}
		val, err := c.Type.Value(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// columnsOf returns the columns set in any of the rows: the identity first,
// then the rest sorted by name.
func columnsOf(ent *graph.Entity, rows []store.Row) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] && k != ent.IDField {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	for _, r := range rows {
		if _, ok := r[ent.IDField]; ok {
			return append([]string{ent.IDField}, names...)
		}
	}
	return names
}

func insert(d string, ent *graph.Entity, cols []string, rows []store.Row) *sql.Builder {
	b := sql.NewBuilder(d)
	b.WriteString("INSERT INTO ").Ident(ent.Table)
	if len(cols) == 0 {
		if d == dialect.MySQL {
			return b.WriteString(" () VALUES ()")
		}
		return b.WriteString(" DEFAULT VALUES")
	}
	b.WriteString(" (").Idents(cols...).WriteString(") VALUES ")
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.Arg(r[c])
		}
		b.WriteString(")")
	}
	return b
}

func normalize(rows []map[string]any, cols map[string]*graph.Column) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		row := make(store.Row, len(r))
		for k, v := range r {
			if c, ok := cols[k]; ok {
				row[k] = c.Type.Normalize(v)
			} else if b, ok := v.([]byte); ok {
				row[k] = string(b)
			} else {
				row[k] = v
			}
		}
		out[i] = row
	}
	return out
}

// list returns the elements of a slice filter value.
func list(v any) ([]any, bool) {
	switch v := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return slices.Clone(v), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// definitions are the entities and edges defined on a store, shared by the
// store and its transactions.
type definitions struct {
	mu       sync.Mutex
	order    []string
	entities map[string]*schema.Entity
	edges    []*graph.Edge
	model    *graph.Graph
}

func (d *definitions) entity(e *schema.Entity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entities[e.Name]; !ok {
		d.order = append(d.order, e.Name)
	}
	d.entities[e.Name] = e
	d.model = nil
	return nil
}

func (d *definitions) edge(e *graph.Edge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range []string{e.Source, e.Target} {
		if _, ok := d.entities[name]; !ok {
			return relgraph.NewNotFoundError("entity " + name)
		}
	}
	for i, x := range d.edges {
		if x.Source == e.Source && x.Target == e.Target && x.Alias == e.Alias {
			d.edges[i] = e
			d.model = nil
			return nil
		}
	}
	d.edges = append(d.edges, e)
	d.model = nil
	return nil
}

func (d *definitions) edgeList() []*graph.Edge {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.edges)
}

// graph returns the model of the definitions, rebuilt after every change.
func (d *definitions) graph() (*graph.Graph, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model != nil {
		return d.model, nil
	}
	descs := make([]*schema.Entity, 0, len(d.order))
	for _, name := range d.order {
		e := *d.entities[name]
		e.Associations = nil
		for _, edge := range d.edges {
			if edge.Source == name {
				e.Associations = append(e.Associations, schema.Association{
					Type:    edge.Kind.String(),
					Target:  edge.Target,
					Through: edge.Through,
					As:      edge.Alias,
				})
			}
		}
		descs = append(descs, &e)
	}
	g, err := graph.Load(descs...)
	if err != nil {
		return nil, err
	}
	d.model = g
	return g, nil
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.ScalarQuerier = (*Store)(nil)
)
