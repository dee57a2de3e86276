package resolve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/contrib/dataloader"
	"github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/dialect/sql/sqlgraph"
	"github.com/syssam/relgraph/store"
)

// Run executes the operation for the owner id. ids are the related ids of
// set, is, add, remove, setMany and has. The result depends on the verb:
//
//	set, unset, add, remove, setMany  nil
//	get                               store.Row, nil when unset
//	getMany                           []store.Row
//	isSet, is, has                    bool
//	count                             int64
func (r *Resolution) Run(ctx context.Context, s store.Store, id any, ids ...any) (any, error) {
	rel := r.Relation
	rel.Dialect = s.Dialect()
	switch r.Verb {
	case relgraph.OpSet:
		if len(ids) != 1 {
			return nil, fmt.Errorf("resolve: %s takes one related id, got %d", r.Name, len(ids))
		}
		if ids[0] == nil {
			return nil, r.clear(ctx, s, &rel, id)
		}
		return nil, r.set(ctx, s, &rel, id, ids)
	case relgraph.OpUnset:
		return nil, r.clear(ctx, s, &rel, id)
	case relgraph.OpGet:
		return r.get(ctx, s, &rel, id)
	case relgraph.OpIsSet:
		n, err := r.count(ctx, s, &rel, id)
		return n > 0, err
	case relgraph.OpIs:
		if len(ids) != 1 {
			return nil, fmt.Errorf("resolve: %s takes one related id, got %d", r.Name, len(ids))
		}
		if ids[0] == nil {
			n, err := r.count(ctx, s, &rel, id)
			return n == 0, err
		}
		return r.has(ctx, s, &rel, id, ids)
	case relgraph.OpAdd:
		if len(ids) == 0 {
			return nil, nil
		}
		return nil, r.exec(ctx, s, id, func() (sql.Statement, error) { return rel.Add(id, ids...) })
	case relgraph.OpRemove:
		if len(ids) == 0 {
			return nil, nil
		}
		return nil, r.exec(ctx, s, id, func() (sql.Statement, error) { return rel.Remove(id, ids...) })
	case relgraph.OpSetMany:
		return nil, r.set(ctx, s, &rel, id, ids)
	case relgraph.OpGetMany:
		return r.raw(ctx, s, func() (sql.Statement, error) { return rel.Get(id) })
	case relgraph.OpHas:
		return r.has(ctx, s, &rel, id, ids)
	case relgraph.OpCount:
		return r.count(ctx, s, &rel, id)
	}
	return nil, unsupported(r.Verb, r.Hop.Edge)
}

// Load fetches the related rows of many owners with one statement, grouped by
// owner key (see store.Key).
func (r *Resolution) Load(ctx context.Context, s store.Store, owners ...any) (map[string][]store.Row, error) {
	if len(owners) == 0 {
		return map[string][]store.Row{}, nil
	}
	rel := r.Relation
	rel.Dialect = s.Dialect()
	rows, err := r.raw(ctx, s, func() (sql.Statement, error) { return rel.GetMany(owners...) })
	if err != nil {
		return nil, err
	}
	grouped := dataloader.GroupByKey(rows, func(row store.Row) string {
		return store.Key(row[sqlgraph.OwnerColumn])
	})
	for _, group := range grouped {
		for _, row := range group {
			delete(row, sqlgraph.OwnerColumn)
		}
	}
	return grouped, nil
}

// set replaces the links of the owner. Native and local-key links are one
// update; other shapes clear and add inside one transaction.
func (r *Resolution) set(ctx context.Context, s store.Store, rel *sqlgraph.Relation, id any, ids []any) error {
	if r.Native {
		return r.update(ctx, s, id, ids[0])
	}
	if rel.Shape == sqlgraph.LocalKey {
		return r.exec(ctx, s, id, func() (sql.Statement, error) { return rel.Add(id, ids...) })
	}
	return s.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := r.exec(ctx, tx, nil, func() (sql.Statement, error) { return rel.Clear(id) }); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return r.exec(ctx, tx, nil, func() (sql.Statement, error) { return rel.Add(id, ids...) })
	})
}

func (r *Resolution) clear(ctx context.Context, s store.Store, rel *sqlgraph.Relation, id any) error {
	if r.Native {
		return r.update(ctx, s, id, nil)
	}
	return r.exec(ctx, s, nil, func() (sql.Statement, error) { return rel.Clear(id) })
}

func (r *Resolution) update(ctx context.Context, s store.Store, id, target any) error {
	n, err := s.Update(ctx, r.Hop.From(), id, store.Row{r.Relation.Column: target})
	if err != nil {
		return err
	}
	if n == 0 {
		return relgraph.NewNotFoundErrorWithID(r.Hop.From(), id)
	}
	return nil
}

func (r *Resolution) get(ctx context.Context, s store.Store, rel *sqlgraph.Relation, id any) (store.Row, error) {
	var rows []store.Row
	if r.Native {
		owner, err := r.owner(ctx, s, id)
		if err != nil {
			return nil, err
		}
		fk := owner[rel.Column]
		if fk == nil {
			return nil, nil
		}
		if rows, err = s.Query(ctx, r.Hop.To(), store.Filter{rel.OtherID: fk}); err != nil {
			return nil, err
		}
	} else {
		var err error
		if rows, err = r.raw(ctx, s, func() (sql.Statement, error) { return rel.Get(id) }); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *Resolution) owner(ctx context.Context, s store.Store, id any) (store.Row, error) {
	rows, err := s.Query(ctx, r.Hop.From(), store.Filter{r.Relation.OwnerID: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, relgraph.NewNotFoundErrorWithID(r.Hop.From(), id)
	}
	return rows[0], nil
}

// has reports whether every distinct id is linked to the owner. No ids is
// vacuously true.
func (r *Resolution) has(ctx context.Context, s store.Store, rel *sqlgraph.Relation, id any, ids []any) (bool, error) {
	distinct := make([]any, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, v := range ids {
		if k := store.Key(v); !seen[k] {
			seen[k] = true
			distinct = append(distinct, v)
		}
	}
	if len(distinct) == 0 {
		return true, nil
	}
	n, err := r.scalar(ctx, s, func() (sql.Statement, error) { return rel.Has(id, distinct...) })
	if err != nil {
		return false, err
	}
	return n == int64(len(distinct)), nil
}

func (r *Resolution) count(ctx context.Context, s store.Store, rel *sqlgraph.Relation, id any) (int64, error) {
	return r.scalar(ctx, s, func() (sql.Statement, error) { return rel.Count(id) })
}

// exec runs a mutation statement. With a non-nil owner, a statement that
// touches no row reports the owner as not found.
func (r *Resolution) exec(ctx context.Context, s store.Store, owner any, build func() (sql.Statement, error)) error {
	stmt, err := build()
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", r.Name, err)
	}
	res, err := s.ExecuteRaw(ctx, "", stmt)
	if err != nil {
		return err
	}
	if owner != nil && r.Relation.Shape == sqlgraph.LocalKey && res.Affected == 0 {
		return relgraph.NewNotFoundErrorWithID(r.Hop.From(), owner)
	}
	return nil
}

func (r *Resolution) raw(ctx context.Context, s store.Store, build func() (sql.Statement, error)) ([]store.Row, error) {
	stmt, err := build()
	if err != nil {
		return nil, fmt.Errorf("resolve: %s: %w", r.Name, err)
	}
	res, err := s.ExecuteRaw(ctx, r.Hop.To(), stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func (r *Resolution) scalar(ctx context.Context, s store.Store, build func() (sql.Statement, error)) (int64, error) {
	stmt, err := build()
	if err != nil {
		return 0, fmt.Errorf("resolve: %s: %w", r.Name, err)
	}
	if sq, ok := s.(store.ScalarQuerier); ok {
		return sq.QueryInt64(ctx, stmt)
	}
	res, err := s.ExecuteRaw(ctx, "", stmt)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	for _, v := range res.Rows[0] {
		return toInt64(v)
	}
	return 0, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("resolve: unexpected count type %T", v)
}
