package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/resolve"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// Report summarises a commit.
type Report struct {
	mu sync.Mutex
	// Inserted counts the inserted rows per entity.
	Inserted map[string]int
	// Wired counts the associations wired.
	Wired int
	// Warnings lists unresolved associations and unordered dependency sets.
	Warnings []string
}

func (r *Report) inserted(entity string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Inserted[entity] += n
}

func (r *Report) wired(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Wired += n
}

func (r *Report) warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Loader accumulates seed records and commits them in dependency order.
// It is safe for concurrent use.
type Loader struct {
	graph    *graph.Graph
	store    store.Store
	resolver *resolve.Resolver
	funcs    *Functions
	cache    relgraph.Cache
	logger   *slog.Logger
	strict   bool
	workers  int

	mu    sync.Mutex
	batch []*Record
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger of the loader.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithStrictDependencies makes a batch whose dependency sets cannot be
// ordered fail before anything is inserted, instead of being inserted in a
// best-effort order with a warning.
func WithStrictDependencies(strict bool) Option {
	return func(ld *Loader) { ld.strict = strict }
}

// WithCache sets the cache association lookups are kept in during a commit.
// Entries are removed when the commit ends. Defaults to a relgraph.MemoryCache.
func WithCache(c relgraph.Cache) Option {
	return func(ld *Loader) { ld.cache = c }
}

// WithFunctions sets the function registry of seed values.
func WithFunctions(f *Functions) Option {
	return func(ld *Loader) { ld.funcs = f }
}

// WithConcurrency sets how many independent bulk inserts may run at once.
// Defaults to 1.
func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.workers = n
		}
	}
}

// New returns a loader inserting into s the entities of g.
func New(g *graph.Graph, s store.Store, opts ...Option) *Loader {
	ld := &Loader{
		graph:   g,
		store:   s,
		cache:   relgraph.NewMemoryCache(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers: 1,
	}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.funcs == nil {
		ld.funcs = NewFunctions()
	}
	ld.resolver = resolve.New(g, resolve.WithLogger(ld.logger))
	return ld
}

// Functions returns the function registry of the loader.
func (ld *Loader) Functions() *Functions { return ld.funcs }

// Add decomposes and queues records of an entity.
func (ld *Loader) Add(entity string, records ...map[string]any) error {
	out := make([]*Record, 0, len(records))
	for _, raw := range records {
		r, err := Decompose(ld.graph, entity, raw)
		if err != nil {
			return err
		}
		out = append(out, r)
	}
	ld.mu.Lock()
	ld.batch = append(ld.batch, out...)
	ld.mu.Unlock()
	ld.logger.Debug("seed records added", "entity", entity, "count", len(out))
	return nil
}

// Len returns the number of queued records.
func (ld *Loader) Len() int {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return len(ld.batch)
}

// Decode queues the records of every YAML document of r. A document maps
// entity names to record lists; entities are added in document order.
func (ld *Loader) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(doc.Content) == 0 {
			continue
		}
		m := doc.Content[0]
		if m.Kind != yaml.MappingNode {
			return fmt.Errorf("seed: line %d: expected a mapping of entities to records", m.Line)
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			var records []map[string]any
			if err := m.Content[i+1].Decode(&records); err != nil {
				return fmt.Errorf("seed: %s: %w", m.Content[i].Value, err)
			}
			if err := ld.Add(m.Content[i].Value, records...); err != nil {
				return err
			}
		}
	}
}

// LoadFS queues the records of every file in fsys matching one of the
// doublestar patterns, in lexical order.
func (ld *Loader) LoadFS(fsys fs.FS, patterns ...string) error {
	paths, err := schema.Glob(fsys, patterns...)
	if err != nil {
		return err
	}
	for _, p := range paths {
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		err = ld.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("seed: %s: %w", p, err)
		}
	}
	return nil
}

// Commit inserts the queued records and clears the batch, whether the commit
// succeeds or not. Records are grouped into dependency sets and the sets are
// inserted in dependency order inside one store transaction. A set without
// association requests is inserted with one bulk insert; otherwise records
// are inserted one by one and their associations wired right after.
func (ld *Loader) Commit(ctx context.Context) (*Report, error) {
	ld.mu.Lock()
	batch := ld.batch
	ld.batch = nil
	ld.mu.Unlock()

	report := &Report{Inserted: make(map[string]int)}
	for _, r := range batch {
		if err := ld.funcs.apply(r); err != nil {
			return report, err
		}
	}
	sets, err := Order(Group(batch))
	if err != nil {
		if ld.strict {
			return report, err
		}
		report.warn("%v; inserting in best-effort order", err)
	}
	ld.logger.InfoContext(ctx, "committing seed batch", "records", len(batch), "order", describe(sets))

	scope := uuid.NewString()
	defer func() {
		if err := ld.cache.DeletePrefix(context.WithoutCancel(ctx), scope+":"); err != nil {
			ld.logger.Warn("clearing association cache", "error", err)
		}
	}()
	err = ld.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		res := &resolver{graph: ld.graph, store: tx, cache: ld.cache, scope: scope, report: report}
		return ld.insert(ctx, tx, res, sets)
	})
	for _, w := range report.Warnings {
		ld.logger.WarnContext(ctx, w)
	}
	return report, err
}

func (ld *Loader) insert(ctx context.Context, tx store.Store, res *resolver, sets []*Set) error {
	for i := 0; i < len(sets); {
		if !sets[i].bulk() {
			if err := ld.insertEach(ctx, tx, res, sets[i]); err != nil {
				return err
			}
			i++
			continue
		}
		wave := []*Set{sets[i]}
		for i++; ld.workers > 1 && i < len(sets) && sets[i].bulk() && independent(wave, sets[i]); i++ {
			wave = append(wave, sets[i])
		}
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(ld.workers)
		for _, s := range wave {
			eg.Go(func() error { return ld.insertBulk(ctx, tx, res.report, s) })
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// independent reports whether s may be inserted together with the wave.
func independent(wave []*Set, s *Set) bool {
	for _, w := range wave {
		if w.Entity == s.Entity || slices.Contains(s.Dependencies, w.Entity) || slices.Contains(w.Dependencies, s.Entity) {
			return false
		}
	}
	return true
}

func (ld *Loader) insertBulk(ctx context.Context, tx store.Store, report *Report, s *Set) error {
	if len(s.Records) == 0 {
		return nil
	}
	data := make([]store.Row, len(s.Records))
	for i, r := range s.Records {
		data[i] = r.Data
	}
	rows, err := tx.BulkInsert(ctx, s.Entity, data)
	if err != nil {
		return err
	}
	report.inserted(s.Entity, len(rows))
	ld.logger.DebugContext(ctx, "seed set inserted", "set", s.String(), "rows", len(rows))
	return nil
}

func (ld *Loader) insertEach(ctx context.Context, tx store.Store, res *resolver, s *Set) error {
	ent, err := ld.graph.Entity(s.Entity)
	if err != nil {
		return err
	}
	for _, r := range s.Records {
		row, err := tx.Insert(ctx, s.Entity, r.Data)
		if err != nil {
			return err
		}
		res.report.inserted(s.Entity, 1)
		id := row[ent.IDField]
		for _, role := range slices.Sorted(maps.Keys(r.Associations)) {
			ids, err := res.ids(ctx, s.Entity, role, r.Associations[role])
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				continue
			}
			if err := ld.wire(ctx, tx, s.Entity, role, id, ids); err != nil {
				return err
			}
			res.report.wired(len(ids))
		}
	}
	ld.logger.DebugContext(ctx, "seed set inserted", "set", s.String(), "rows", len(s.Records))
	return nil
}

// wire links the inserted row to the resolved ids with the add operation of
// the relationship. To-one relationships resolve add to set, applied once per
// id so the last one wins.
func (ld *Loader) wire(ctx context.Context, tx store.Store, entity, role string, id any, ids []any) error {
	op, err := ld.resolver.ResolveRole(entity, role, relgraph.OpAdd)
	if err != nil {
		return err
	}
	if op.Verb == relgraph.OpAdd {
		_, err := op.Run(ctx, tx, id, ids...)
		return err
	}
	for _, target := range ids {
		if _, err := op.Run(ctx, tx, id, target); err != nil {
			return err
		}
	}
	return nil
}
