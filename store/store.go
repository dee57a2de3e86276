// Package store defines the backing storage collaborator the session and the
// data loader run on. The SQL implementation lives in store/sqlstore.
package store

import (
	"context"
	"fmt"

	"github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/graph"
)

// Row is a stored record keyed by column name.
type Row map[string]any

// ID returns the value of the identity column.
func (r Row) ID(field string) any { return r[field] }

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Filter selects rows by column equality. A slice value matches any of its
// elements, an empty slice matches nothing and nil matches NULL.
type Filter map[string]any

// Result holds the outcome of a raw statement.
type Result struct {
	Rows     []Row
	Affected int64
}

// Store is the storage engine a model is materialised on.
type Store interface {
	// DefineEntity declares the structure of an entity.
	DefineEntity(*graph.Entity) error
	// DefineRelationship declares an edge between two defined entities.
	DefineRelationship(*graph.Edge) error

	// Query returns the rows of an entity matching the filter.
	Query(ctx context.Context, entity string, f Filter) ([]Row, error)
	// Insert stores a row and returns it as stored.
	Insert(ctx context.Context, entity string, data Row) (Row, error)
	// BulkInsert stores rows and returns them as stored, in input order.
	BulkInsert(ctx context.Context, entity string, data []Row) ([]Row, error)
	// Update changes the row with the given id and returns the number of affected rows.
	Update(ctx context.Context, entity string, id any, data Row) (int64, error)
	// Delete removes the row with the given id and reports whether it existed.
	Delete(ctx context.Context, entity string, id any) (bool, error)
	// ExecuteRaw runs a statement. Returned rows are normalised with the
	// column types of entity when it is not empty.
	ExecuteRaw(ctx context.Context, entity string, stmt sql.Statement) (*Result, error)

	// Sync materialises every defined structure, calling onEntity and
	// onRelationship once each structure is present. With force, existing
	// structures are dropped first.
	Sync(ctx context.Context, force bool, onEntity func(name string), onRelationship func(source, target, alias string)) error
	// Tx runs fn in a transaction. The store passed to fn must be used for
	// every call inside it. Calling Tx inside fn joins the outer transaction.
	Tx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// Dialect returns the statement dialect of the store.
	Dialect() string
}

// ScalarQuerier is implemented by stores that read a single integer result,
// such as a count, without materialising rows.
type ScalarQuerier interface {
	QueryInt64(ctx context.Context, stmt sql.Statement) (int64, error)
}

// Define declares every entity and edge of the graph on the store.
func Define(s Store, g *graph.Graph) error {
	ents := g.Entities()
	for _, e := range ents {
		if err := s.DefineEntity(e); err != nil {
			return fmt.Errorf("store: define %s: %w", e.Name, err)
		}
	}
	for _, e := range ents {
		edges, err := g.EdgesFrom(e.Name)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			if err := s.DefineRelationship(edge); err != nil {
				return fmt.Errorf("store: define %s: %w", edge, err)
			}
		}
	}
	return nil
}

// Sync defines the graph on the store, materialises it and flips the loaded
// flags of the graph as structures become ready.
func Sync(ctx context.Context, s Store, g *graph.Graph, force bool) error {
	if err := Define(s, g); err != nil {
		return err
	}
	var cbErr error
	err := s.Sync(ctx, force,
		func(name string) {
			if err := g.MarkEntityLoaded(name); err != nil && cbErr == nil {
				cbErr = err
			}
		},
		func(source, target, alias string) {
			if err := g.MarkEdgeLoaded(source, target, alias); err != nil && cbErr == nil {
				cbErr = err
			}
		},
	)
	if err != nil {
		return err
	}
	return cbErr
}

// Key returns a comparable form of an identity value. Drivers return ids as
// int64, string or bytes depending on the column type and dialect.
func Key(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	}
	return fmt.Sprint(id)
}
