package schema

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema/field"
)

// Driver is the database handle migrations run on. *sql.Driver and *sql.Tx implement it.
type Driver interface {
	schema.ExecQuerier
	Dialect() string
}

// Migrate creates the tables of a model.
type Migrate struct {
	drv        Driver
	dropTables bool
	checkDrift bool
	logger     *slog.Logger
}

// MigrateOption configures Migrate.
type MigrateOption func(*Migrate)

// WithDropTables drops the tables before creating them.
func WithDropTables(b bool) MigrateOption {
	return func(m *Migrate) { m.dropTables = b }
}

// WithDriftCheck compares existing tables with the model before creating the
// missing ones. Enabled by default.
func WithDriftCheck(b bool) MigrateOption {
	return func(m *Migrate) { m.checkDrift = b }
}

// WithLogger sets the logger for drift warnings.
func WithLogger(l *slog.Logger) MigrateOption {
	return func(m *Migrate) { m.logger = l }
}

// NewMigrate returns a Migrate for the driver.
func NewMigrate(drv Driver, opts ...MigrateOption) (*Migrate, error) {
	if !dialect.Valid(drv.Dialect()) {
		return nil, fmt.Errorf("sql/schema: unsupported dialect %q", drv.Dialect())
	}
	m := &Migrate{drv: drv, checkDrift: true, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Migrate) atlas() (migrate.Driver, error) {
	switch m.drv.Dialect() {
	case dialect.SQLite:
		return sqlite.Open(m.drv)
	case dialect.Postgres:
		return postgres.Open(m.drv)
	default:
		return mysql.Open(m.drv)
	}
}

// Create creates the tables that do not exist yet. With WithDropTables, all
// tables are dropped first.
func (m *Migrate) Create(ctx context.Context, tables ...*schema.Table) error {
	if r := ValidateSchema(tables); r.HasErrors() {
		return fmt.Errorf("sql/schema: invalid schema:\n%s", r)
	}
	drv, err := m.atlas()
	if err != nil {
		return fmt.Errorf("sql/schema: open atlas driver: %w", err)
	}
	changes, err := m.changes(ctx, drv, tables)
	if err != nil || len(changes) == 0 {
		return err
	}
	if err := drv.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("sql/schema: apply changes: %w", err)
	}
	return nil
}

// changes returns the changes Create applies. Tables already present in the
// database are skipped rather than guarded with IF NOT EXISTS, which atlas
// renders in a position SQLite rejects.
func (m *Migrate) changes(ctx context.Context, drv migrate.Driver, tables []*schema.Table) ([]schema.Change, error) {
	var changes []schema.Change
	if m.dropTables {
		for i := len(tables) - 1; i >= 0; i-- {
			changes = append(changes, &schema.DropTable{T: tables[i], Extra: []schema.Clause{&schema.IfExists{}}})
		}
		for _, t := range tables {
			changes = append(changes, &schema.AddTable{T: t})
		}
		return changes, nil
	}
	current, err := m.inspect(ctx, drv)
	if err != nil {
		return nil, err
	}
	if m.checkDrift {
		r := ValidateDrift(current, tables)
		for _, w := range r.Warnings {
			m.logger.WarnContext(ctx, "schema drift", "table", w.Table, "column", w.Column, "problem", w.Message)
		}
		if r.HasErrors() {
			return nil, fmt.Errorf("sql/schema: existing tables do not match the model:\n%s", r)
		}
	}
	exists := make(map[string]bool, len(current))
	for _, t := range current {
		exists[t.Name] = true
	}
	for _, t := range tables {
		if !exists[t.Name] {
			changes = append(changes, &schema.AddTable{T: t})
		}
	}
	return changes, nil
}

// Drift reports differences between the existing tables and the desired ones.
func (m *Migrate) Drift(ctx context.Context, tables ...*schema.Table) (*ValidationResult, error) {
	drv, err := m.atlas()
	if err != nil {
		return nil, fmt.Errorf("sql/schema: open atlas driver: %w", err)
	}
	return m.drift(ctx, drv, tables)
}

func (m *Migrate) drift(ctx context.Context, drv migrate.Driver, tables []*schema.Table) (*ValidationResult, error) {
	current, err := m.inspect(ctx, drv)
	if err != nil {
		return nil, err
	}
	return ValidateDrift(current, tables), nil
}

func (m *Migrate) inspect(ctx context.Context, drv migrate.Driver) ([]*schema.Table, error) {
	name := ""
	if m.drv.Dialect() == dialect.SQLite {
		name = "main"
	}
	current, err := drv.InspectSchema(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("sql/schema: inspect: %w", err)
	}
	return current.Tables, nil
}

// Tables builds the tables of the graph for a dialect: entity tables ordered
// so referenced tables come first, followed by join tables.
func Tables(g *graph.Graph, d string) ([]*schema.Table, error) {
	var (
		tables []*schema.Table
		byName = make(map[string]*schema.Table)
		refs   = make(map[string][]*graph.Column)
	)
	for _, ent := range g.Sorted() {
		cols, err := g.Columns(ent.Name)
		if err != nil {
			return nil, err
		}
		t := schema.NewTable(ent.Table)
		for _, c := range cols {
			col := &schema.Column{
				Name: c.Name,
				Type: &schema.ColumnType{Type: columnType(d, c.Type), Null: c.Nullable && !c.PrimaryKey},
			}
			t.AddColumns(col)
			switch {
			case c.PrimaryKey:
				if c.Type == field.TypeInt {
					col.AddAttrs(identity(d))
				}
				t.SetPrimaryKey(schema.NewPrimaryKey(col))
			case c.Unique:
				t.AddIndexes(schema.NewUniqueIndex(fmt.Sprintf("%s_%s_key", t.Name, c.Name)).AddColumns(col))
			}
			if c.Ref != "" {
				refs[ent.Name] = append(refs[ent.Name], c)
			}
		}
		if t.PrimaryKey == nil {
			return nil, fmt.Errorf("sql/schema: entity %q has no primary key column", ent.Name)
		}
		byName[ent.Name] = t
		tables = append(tables, t)
	}
	for _, ent := range g.Sorted() {
		t := byName[ent.Name]
		for _, c := range refs[ent.Name] {
			ref := byName[c.Ref]
			col, _ := t.Column(c.Name)
			action := schema.SetNull
			if c.Edge != nil && c.Edge.OnDelete != "" {
				action = schema.ReferenceOption(c.Edge.OnDelete)
			}
			t.AddForeignKeys(schema.NewForeignKey(fmt.Sprintf("%s_%s_fkey", t.Name, c.Name)).
				AddColumns(col).
				SetRefTable(ref).
				AddRefColumns(ref.PrimaryKey.Parts[0].C).
				SetOnDelete(action))
		}
	}
	for _, jt := range g.JoinTables() {
		src, dst := byName[jt.Edge.Source], byName[jt.Edge.Target]
		t := schema.NewTable(jt.Name)
		sc := &schema.Column{Name: jt.SourceCol, Type: &schema.ColumnType{Type: src.PrimaryKey.Parts[0].C.Type.Type}}
		dc := &schema.Column{Name: jt.TargetCol, Type: &schema.ColumnType{Type: dst.PrimaryKey.Parts[0].C.Type.Type}}
		t.AddColumns(sc, dc)
		t.SetPrimaryKey(schema.NewPrimaryKey(sc, dc))
		t.AddForeignKeys(
			schema.NewForeignKey(fmt.Sprintf("%s_%s_fkey", t.Name, sc.Name)).
				AddColumns(sc).SetRefTable(src).AddRefColumns(src.PrimaryKey.Parts[0].C).SetOnDelete(schema.Cascade),
			schema.NewForeignKey(fmt.Sprintf("%s_%s_fkey", t.Name, dc.Name)).
				AddColumns(dc).SetRefTable(dst).AddRefColumns(dst.PrimaryKey.Parts[0].C).SetOnDelete(schema.Cascade),
		)
		tables = append(tables, t)
	}
	return tables, nil
}

func identity(d string) schema.Attr {
	switch d {
	case dialect.Postgres:
		return &postgres.Identity{Generation: "BY DEFAULT"}
	case dialect.MySQL:
		return &mysql.AutoIncrement{}
	default:
		return &sqlite.AutoIncrement{}
	}
}

func columnType(d string, t field.Type) schema.Type {
	pick := func(pg, my, lite schema.Type) schema.Type {
		switch d {
		case dialect.Postgres:
			return pg
		case dialect.MySQL:
			return my
		default:
			return lite
		}
	}
	switch t {
	case field.TypeText:
		return pick(&schema.StringType{T: "text"}, &schema.StringType{T: "longtext"}, &schema.StringType{T: "text"})
	case field.TypeUUID:
		return pick(&schema.UUIDType{T: "uuid"}, &schema.StringType{T: "char", Size: 36}, &schema.StringType{T: "text"})
	case field.TypeBool:
		return pick(&schema.BoolType{T: "boolean"}, &schema.BoolType{T: "bool"}, &schema.BoolType{T: "bool"})
	case field.TypeInt:
		return pick(&schema.IntegerType{T: "bigint"}, &schema.IntegerType{T: "bigint"}, &schema.IntegerType{T: "integer"})
	case field.TypeFloat:
		return pick(&schema.FloatType{T: "double precision"}, &schema.FloatType{T: "double"}, &schema.FloatType{T: "real"})
	case field.TypeTime:
		return pick(&schema.TimeType{T: "timestamp with time zone"}, &schema.TimeType{T: "timestamp"}, &schema.TimeType{T: "datetime"})
	case field.TypeJSON:
		return pick(&schema.JSONType{T: "jsonb"}, &schema.JSONType{T: "json"}, &schema.JSONType{T: "json"})
	default:
		return pick(&schema.StringType{T: "character varying"}, &schema.StringType{T: "varchar", Size: 255}, &schema.StringType{T: "text"})
	}
}
