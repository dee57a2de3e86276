package session

import (
	"context"
	"sort"

	"github.com/syssam/relgraph/contrib/dataloader"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/store"
)

// eager attaches the associations of the requested flags to the rows. Every
// hop prefix of the requested paths is fetched once per call, for all rows of
// the level above it, and memoized by path key. Associations are attached
// under the hop role, pluralized for to-many hops: a slice of rows, or a row
// (nil when unset) for to-one hops.
func (s *Session) eager(ctx context.Context, op *Operation, rows []store.Row, opts map[string]bool) error {
	flags := make([]string, 0, len(opts))
	for flag, on := range opts {
		if on {
			flags = append(flags, flag)
		}
	}
	if len(flags) == 0 || len(rows) == 0 {
		return nil
	}
	sort.Strings(flags)
	memo := map[string][]store.Row{"": rows}
	for _, flag := range flags {
		p, ok := op.paths[flag]
		if !ok {
			continue
		}
		for i := 1; i <= len(p); i++ {
			if err := s.fetch(ctx, op, p[:i], memo); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, op *Operation, p graph.Path, memo map[string][]store.Row) error {
	key := p.Key()
	if _, ok := memo[key]; ok {
		return nil
	}
	parents := memo[p.Parent().Key()]
	h := p.Last()
	res := op.loads[key]
	from, err := s.table.graph.Entity(h.From())
	if err != nil {
		return err
	}
	keys := make([]string, len(parents))
	ids := make([]any, len(parents))
	for i, row := range parents {
		ids[i] = row[from.IDField]
		keys[i] = store.Key(ids[i])
	}
	owners := dataloader.Unique(ids, store.Key, func(id any) bool { return id == nil })
	grouped, err := res.Load(ctx, s.store, owners...)
	if err != nil {
		return err
	}
	attach := h.Role()
	if h.ToMany() {
		attach = graph.Plural(attach)
	}
	var children []store.Row
	for i, group := range dataloader.OrderGroupsByKeys(keys, grouped) {
		row := parents[i]
		// parents sharing an id get their own copies.
		related := make([]store.Row, 0, len(group))
		for _, r := range group {
			related = append(related, r.Clone())
		}
		children = append(children, related...)
		switch {
		case h.ToMany():
			row[attach] = related
		case len(related) > 0:
			row[attach] = related[0]
		default:
			row[attach] = nil
		}
	}
	memo[key] = children
	s.logger.DebugContext(ctx, "eager loaded", "operation", op.Name, "path", key, "rows", len(children))
	return nil
}
