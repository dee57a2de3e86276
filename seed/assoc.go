package seed

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/store"
)

// cached is the cache entry of one target entity. Complete is set once every
// stored row was fetched.
type cached struct {
	Complete bool             `msgpack:"complete"`
	Rows     []map[string]any `msgpack:"rows"`
}

// resolver finds the ids association requests refer to. Fetched rows are
// kept in the cache under the scope of one commit.
type resolver struct {
	graph  *graph.Graph
	store  store.Store
	cache  relgraph.Cache
	scope  string
	report *Report
}

func (r *resolver) key(entity string) string {
	return relgraph.CacheKey{Scope: r.scope, Entity: entity, Kind: "rows"}.String()
}

func (r *resolver) load(ctx context.Context, entity string) (*cached, error) {
	b, err := r.cache.Get(ctx, r.key(entity))
	if err != nil || b == nil {
		return &cached{}, err
	}
	c := &cached{}
	if err := msgpack.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("seed: decode cached %s rows: %w", entity, err)
	}
	return c, nil
}

func (r *resolver) save(ctx context.Context, entity string, c *cached) error {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("seed: encode cached %s rows: %w", entity, err)
	}
	return r.cache.Set(ctx, r.key(entity), b, 0)
}

// ids resolves the request of an association of entity to target ids. No
// match or several matches for one request are reported as warnings; all
// matches are returned.
func (r *resolver) ids(ctx context.Context, entity, role string, request any) ([]any, error) {
	h, err := r.graph.HopByRole(entity, role)
	if err != nil {
		return nil, err
	}
	target, err := r.graph.Entity(h.To())
	if err != nil {
		return nil, err
	}
	requests, ok := request.([]any)
	if !ok {
		requests = []any{request}
	}
	var ids []any
	for _, req := range requests {
		if req == nil {
			continue
		}
		rows, err := r.match(ctx, target, req)
		if err != nil {
			return nil, err
		}
		switch {
		case len(rows) == 0:
			r.report.warn("no %s found for %s.%s: %v", target.Name, entity, role, req)
			continue
		case len(rows) > 1 && !isAll(req):
			r.report.warn("%d %s rows found for %s.%s: %v", len(rows), target.Name, entity, role, req)
		}
		for _, row := range rows {
			ids = append(ids, row[target.IDField])
		}
	}
	return ids, nil
}

// match returns the rows of target matching one request. Cached rows are
// searched first; a miss queries the store and grows the cache.
func (r *resolver) match(ctx context.Context, target *graph.Entity, req any) ([]map[string]any, error) {
	c, err := r.load(ctx, target.Name)
	if err != nil {
		return nil, err
	}
	if isAll(req) {
		if !c.Complete {
			rows, err := r.store.Query(ctx, target.Name, nil)
			if err != nil {
				return nil, err
			}
			c = &cached{Complete: true, Rows: plain(rows)}
			if err := r.save(ctx, target.Name, c); err != nil {
				return nil, err
			}
		}
		return c.Rows, nil
	}
	filter, ok := req.(map[string]any)
	if !ok {
		filter = map[string]any{target.IDField: req}
	}
	var found []map[string]any
	for _, row := range c.Rows {
		if matches(row, filter) {
			found = append(found, row)
		}
	}
	if len(found) > 0 {
		return found, nil
	}
	rows, err := r.store.Query(ctx, target.Name, store.Filter(filter))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	found = plain(rows)
	c.Rows = append(c.Rows, found...)
	return found, r.save(ctx, target.Name, c)
}

// matches compares by store.Key so values survive the cache encoding.
func matches(row, filter map[string]any) bool {
	for k, v := range filter {
		got, ok := row[k]
		if !ok || store.Key(got) != store.Key(v) {
			return false
		}
	}
	return true
}

func isAll(req any) bool {
	s, ok := req.(string)
	return ok && (s == All || s == "*")
}

func plain(rows []store.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
