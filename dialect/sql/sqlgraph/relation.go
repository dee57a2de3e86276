package sqlgraph

import (
	"errors"
	"fmt"

	"github.com/syssam/relgraph/dialect/sql"
)

// OwnerColumn is the column holding the owner id in rows returned by GetMany.
const OwnerColumn = "__owner"

// Shape is the storage shape of a relation.
type Shape uint8

// Relation shapes.
const (
	LocalKey Shape = iota + 1
	RemoteKey
	Join
)

func (s Shape) String() string {
	switch s {
	case LocalKey:
		return "local-key"
	case RemoteKey:
		return "remote-key"
	case Join:
		return "join"
	}
	return "invalid"
}

// ErrNoIDs is returned by statements that need at least one related id.
var ErrNoIDs = errors.New("sqlgraph: no ids given")

// Relation describes how the rows related to an owner row are stored.
type Relation struct {
	Dialect string
	Shape   Shape

	// Owner rows.
	OwnerTable string
	OwnerID    string
	// Related rows.
	OtherTable string
	OtherID    string

	// Column is the foreign key: on the owner table for LocalKey, on the other
	// table for RemoteKey.
	Column string

	// Join table and its columns referencing the owner and the related rows.
	JoinTable string
	OwnerCol  string
	OtherCol  string
}

func (r *Relation) builder() *sql.Builder { return sql.NewBuilder(r.Dialect) }

func (r *Relation) check() error {
	switch {
	case r.Shape < LocalKey || r.Shape > Join:
		return fmt.Errorf("sqlgraph: invalid relation shape %d", r.Shape)
	case r.Shape == Join && (r.JoinTable == "" || r.OwnerCol == "" || r.OtherCol == ""):
		return fmt.Errorf("sqlgraph: join relation %s -> %s misses its join table", r.OwnerTable, r.OtherTable)
	case r.Shape != Join && r.Column == "":
		return fmt.Errorf("sqlgraph: %s relation %s -> %s misses its column", r.Shape, r.OwnerTable, r.OtherTable)
	}
	return nil
}

// Clear removes every link of the owner.
func (r *Relation) Clear(id any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		b.WriteString("UPDATE ").Ident(r.OwnerTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = NULL WHERE ").Eq(r.OwnerID, id)
	case RemoteKey:
		b.WriteString("UPDATE ").Ident(r.OtherTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = NULL WHERE ").Eq(r.Column, id)
	case Join:
		b.WriteString("DELETE FROM ").Ident(r.JoinTable).WriteString(" WHERE ").Eq(r.OwnerCol, id)
	}
	return b.Statement(false)
}

// Add links the owner to the given rows. A LocalKey relation links exactly one row.
func (r *Relation) Add(id any, ids ...any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	if len(ids) == 0 {
		return sql.Statement{}, ErrNoIDs
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		if len(ids) > 1 {
			return sql.Statement{}, fmt.Errorf("sqlgraph: %s.%s holds a single reference, got %d ids", r.OwnerTable, r.Column, len(ids))
		}
		b.WriteString("UPDATE ").Ident(r.OwnerTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = ").Arg(ids[0]).WriteString(" WHERE ").Eq(r.OwnerID, id)
	case RemoteKey:
		b.WriteString("UPDATE ").Ident(r.OtherTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = ").Arg(id).WriteString(" WHERE ").In(r.OtherID, ids...)
	case Join:
		b.WriteString("INSERT INTO ").Ident(r.JoinTable).WriteString(" (").Idents(r.OwnerCol, r.OtherCol).WriteString(") VALUES ")
		for i, other := range ids {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(").Args(id, other).WriteString(")")
		}
	}
	return b.Statement(false)
}

// Remove unlinks the owner from the given rows.
func (r *Relation) Remove(id any, ids ...any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	if len(ids) == 0 {
		return sql.Statement{}, ErrNoIDs
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		b.WriteString("UPDATE ").Ident(r.OwnerTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = NULL WHERE ").Eq(r.OwnerID, id).WriteString(" AND ").In(r.Column, ids...)
	case RemoteKey:
		b.WriteString("UPDATE ").Ident(r.OtherTable).WriteString(" SET ").Ident(r.Column).
			WriteString(" = NULL WHERE ").Eq(r.Column, id).WriteString(" AND ").In(r.OtherID, ids...)
	case Join:
		b.WriteString("DELETE FROM ").Ident(r.JoinTable).WriteString(" WHERE ").Eq(r.OwnerCol, id).
			WriteString(" AND ").In(r.OtherCol, ids...)
	}
	return b.Statement(false)
}

// Has counts the distinct given rows linked to the owner. The caller compares
// the count with the number of distinct requested ids.
func (r *Relation) Has(id any, ids ...any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	if len(ids) == 0 {
		return sql.Statement{}, ErrNoIDs
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		b.WriteString("SELECT COUNT(DISTINCT ").Ident(r.Column).WriteString(") FROM ").Ident(r.OwnerTable).
			WriteString(" WHERE ").Eq(r.OwnerID, id).WriteString(" AND ").In(r.Column, ids...)
	case RemoteKey:
		b.WriteString("SELECT COUNT(DISTINCT ").Ident(r.OtherID).WriteString(") FROM ").Ident(r.OtherTable).
			WriteString(" WHERE ").Eq(r.Column, id).WriteString(" AND ").In(r.OtherID, ids...)
	case Join:
		b.WriteString("SELECT COUNT(DISTINCT ").Ident(r.OtherCol).WriteString(") FROM ").Ident(r.JoinTable).
			WriteString(" WHERE ").Eq(r.OwnerCol, id).WriteString(" AND ").In(r.OtherCol, ids...)
	}
	return b.Statement(true)
}

// Get selects every column of the rows linked to the owner.
func (r *Relation) Get(id any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		b.WriteString("SELECT * FROM ").Ident(r.OtherTable).WriteString(" WHERE ").Ident(r.OtherID).
			WriteString(" IN (SELECT ").Ident(r.Column).WriteString(" FROM ").Ident(r.OwnerTable).
			WriteString(" WHERE ").Eq(r.OwnerID, id).WriteString(")")
	case RemoteKey:
		b.WriteString("SELECT * FROM ").Ident(r.OtherTable).WriteString(" WHERE ").Eq(r.Column, id)
	case Join:
		b.WriteString("SELECT ").Ident("t1.*").WriteString(" FROM ").Ident(r.OtherTable).WriteString(" AS ").Ident("t1").
			WriteString(" JOIN ").Ident(r.JoinTable).WriteString(" AS ").Ident("t2").
			WriteString(" ON ").Ident("t2."+r.OtherCol).WriteString(" = ").Ident("t1."+r.OtherID).
			WriteString(" WHERE ").Eq("t2."+r.OwnerCol, id)
	}
	return b.Statement(true)
}

// Count counts the rows linked to the owner.
func (r *Relation) Count(id any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	b := r.builder()
	switch r.Shape {
	case LocalKey:
		b.WriteString("SELECT COUNT(*) FROM ").Ident(r.OwnerTable).WriteString(" WHERE ").Eq(r.OwnerID, id).
			WriteString(" AND ").Ident(r.Column).WriteString(" IS NOT NULL")
	case RemoteKey:
		b.WriteString("SELECT COUNT(*) FROM ").Ident(r.OtherTable).WriteString(" WHERE ").Eq(r.Column, id)
	case Join:
		b.WriteString("SELECT COUNT(*) FROM ").Ident(r.JoinTable).WriteString(" WHERE ").Eq(r.OwnerCol, id)
	}
	return b.Statement(true)
}

// GetMany selects the rows linked to any of the owners, each row carrying the
// id of its owner in the OwnerColumn column. It is used to load a hop for a
// whole result set at once.
func (r *Relation) GetMany(owners ...any) (sql.Statement, error) {
	if err := r.check(); err != nil {
		return sql.Statement{}, err
	}
	if len(owners) == 0 {
		return sql.Statement{}, ErrNoIDs
	}
	b := r.builder()
	b.WriteString("SELECT ").Ident("t1.*").WriteString(", ")
	switch r.Shape {
	case LocalKey:
		b.Ident("t2."+r.OwnerID).WriteString(" AS ").Ident(OwnerColumn).
			WriteString(" FROM ").Ident(r.OtherTable).WriteString(" AS ").Ident("t1").
			WriteString(" JOIN ").Ident(r.OwnerTable).WriteString(" AS ").Ident("t2").
			WriteString(" ON ").Ident("t2."+r.Column).WriteString(" = ").Ident("t1."+r.OtherID).
			WriteString(" WHERE ").In("t2."+r.OwnerID, owners...)
	case RemoteKey:
		b.Ident("t1."+r.Column).WriteString(" AS ").Ident(OwnerColumn).
			WriteString(" FROM ").Ident(r.OtherTable).WriteString(" AS ").Ident("t1").
			WriteString(" WHERE ").In("t1."+r.Column, owners...)
	case Join:
		b.Ident("t2."+r.OwnerCol).WriteString(" AS ").Ident(OwnerColumn).
			WriteString(" FROM ").Ident(r.OtherTable).WriteString(" AS ").Ident("t1").
			WriteString(" JOIN ").Ident(r.JoinTable).WriteString(" AS ").Ident("t2").
			WriteString(" ON ").Ident("t2."+r.OtherCol).WriteString(" = ").Ident("t1."+r.OtherID).
			WriteString(" WHERE ").In("t2."+r.OwnerCol, owners...)
	}
	return b.Statement(true)
}
