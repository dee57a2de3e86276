package graph

import (
	"fmt"
	"sync"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/mixin"
)

// DefaultDepth is the default eager-load traversal depth.
const DefaultDepth = 2

// Graph holds registered entities and their relationship edges. Once populated
// it is append-only: entities can be added, never replaced.
type Graph struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	order    []*Entity
	from     map[string][]*Edge
	into     map[string][]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		entities: make(map[string]*Entity),
		from:     make(map[string][]*Edge),
		into:     make(map[string][]*Edge),
	}
}

// Load returns a graph populated with the given descriptors.
func Load(descs ...*schema.Entity) (*Graph, error) {
	g := New()
	if err := g.Register(descs...); err != nil {
		return nil, err
	}
	return g, nil
}

// Register adds entities and derives edges from their declared associations.
// The call is atomic: on error the graph is left unchanged. Targets may be
// entities registered earlier or in the same call. Declared mixins are
// applied to the descriptors first.
func (g *Graph) Register(descs ...*schema.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	batch := make(map[string]*schema.Entity, len(descs))
	for _, d := range descs {
		subject := "entity " + d.Name
		if err := mixin.Apply(d); err != nil {
			return &relgraph.ConfigurationError{Subject: subject, Cause: err}
		}
		if err := d.Validate(); err != nil {
			return &relgraph.ConfigurationError{Subject: subject, Cause: err}
		}
		if _, ok := g.entities[d.Name]; ok {
			return relgraph.NewConfigurationError(subject, "entity is already registered")
		}
		if _, ok := batch[d.Name]; ok {
			return relgraph.NewConfigurationError(subject, "entity is declared twice")
		}
		batch[d.Name] = d
	}
	known := func(name string) bool {
		_, ok := g.entities[name]
		return ok || batch[name] != nil
	}
	var (
		entities = make([]*Entity, 0, len(descs))
		edges    []*Edge
		aliases  = make(map[[2]string]bool)
	)
	for _, d := range descs {
		if d.Meta.Owner != "" && !known(d.Meta.Owner) {
			return relgraph.NewConfigurationError("entity "+d.Name, "owner %q is not a registered entity", d.Meta.Owner)
		}
		entities = append(entities, &Entity{
			Name:       d.Name,
			Table:      TableName(d.Name),
			IDField:    d.IDField(),
			Owner:      d.Meta.Owner,
			Attributes: d.Attributes,
			desc:       d,
		})
		for _, a := range d.Associations {
			e, err := newEdge(d.Name, a)
			if err != nil {
				return err
			}
			if !known(e.Target) {
				return relgraph.NewConfigurationError("edge "+e.String(), "target %q is not a registered entity", e.Target)
			}
			key := [2]string{e.Source, e.Alias}
			if aliases[key] {
				return relgraph.NewConfigurationError("edge "+e.String(), "alias %q is used twice on %q", e.Alias, e.Source)
			}
			aliases[key] = true
			edges = append(edges, e)
		}
	}
	if err := g.checkJoins(entities, edges); err != nil {
		return err
	}
	for _, e := range entities {
		g.entities[e.Name] = e
		g.order = append(g.order, e)
	}
	for _, e := range edges {
		g.from[e.Source] = append(g.from[e.Source], e)
		g.into[e.Target] = append(g.into[e.Target], e)
	}
	g.classify()
	return nil
}

func newEdge(source string, a schema.Association) (*Edge, error) {
	kind, err := ParseKind(a.Type)
	if err != nil {
		return nil, &relgraph.ConfigurationError{Subject: "entity " + source, Cause: err}
	}
	e := &Edge{Source: source, Target: a.Target, Alias: a.As, Kind: kind, Through: a.Through}
	if e.Alias == "" {
		e.Alias = e.Target
	}
	if e.OnDelete, err = schema.ReferentialAction(a.OnDelete); err != nil {
		return nil, &relgraph.ConfigurationError{Subject: "edge " + e.String(), Cause: err}
	}
	switch {
	case kind == ToManyShared && e.Through == "":
		return nil, relgraph.NewConfigurationError("edge "+e.String(), "belongsToMany requires a through table")
	case kind != ToManyShared && e.Through != "":
		return nil, relgraph.NewConfigurationError("edge "+e.String(), "through is only valid on belongsToMany")
	case kind == ToManyShared && e.Source == e.Target && e.DefaultAlias():
		return nil, relgraph.NewConfigurationError("edge "+e.String(), "self-referencing belongsToMany requires an alias")
	}
	return e, nil
}

// checkJoins verifies that every join table connects a single pair of entities
// and does not shadow an entity table. Must be called with the lock held.
func (g *Graph) checkJoins(entities []*Entity, added []*Edge) error {
	tables := make(map[string]string)
	for _, e := range append(append([]*Entity(nil), g.order...), entities...) {
		tables[e.Table] = e.Name
	}
	pairs := make(map[string]*Edge)
	check := func(e *Edge) error {
		if e.Kind != ToManyShared {
			return nil
		}
		if name, ok := tables[e.Through]; ok {
			return relgraph.NewConfigurationError("edge "+e.String(), "through table %q is the table of entity %q", e.Through, name)
		}
		prev, ok := pairs[e.Through]
		if !ok {
			pairs[e.Through] = e
			return nil
		}
		same := prev.Source == e.Source && prev.Target == e.Target && prev.Alias != e.Alias
		reversed := prev.Source == e.Target && prev.Target == e.Source
		if !reversed || same {
			return relgraph.NewConfigurationError("edge "+e.String(), "through table %q already joins %s", e.Through, prev)
		}
		return nil
	}
	for _, es := range g.from {
		for _, e := range es {
			if err := check(e); err != nil {
				return err
			}
		}
	}
	for _, e := range added {
		if err := check(e); err != nil {
			return err
		}
	}
	return nil
}

// Classify marks bidirectionally declared edges. Register runs it; it is
// exported for graphs whose edges were mutated directly.
func (g *Graph) Classify() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.classify()
}

func (g *Graph) classify() {
	for _, es := range g.from {
		for _, e := range es {
			e.Bidirectional = false
			for _, f := range g.from[e.Target] {
				if f != e && f.Target == e.Source && f.Alias == e.ReverseRole() {
					e.Bidirectional = true
					break
				}
			}
		}
	}
}

// Entity returns a registered entity.
func (g *Graph) Entity(name string) (*Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[name]
	if !ok {
		return nil, relgraph.NewNotFoundError("entity " + name)
	}
	return e, nil
}

// Entities returns all entities in registration order.
func (g *Graph) Entities() []*Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Entity(nil), g.order...)
}

// EdgesFrom returns the forward edges declared by an entity.
func (g *Graph) EdgesFrom(name string) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.entities[name]; !ok {
		return nil, relgraph.NewNotFoundError("entity " + name)
	}
	return append([]*Edge(nil), g.from[name]...), nil
}

// EdgesInto returns the edges of other entities (or self-references) that target an entity.
func (g *Graph) EdgesInto(name string) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.entities[name]; !ok {
		return nil, relgraph.NewNotFoundError("entity " + name)
	}
	return append([]*Edge(nil), g.into[name]...), nil
}

// Edge returns the forward edge (source, target, alias). An empty alias means
// the default alias.
func (g *Graph) Edge(source, target, alias string) (*Edge, error) {
	if alias == "" {
		alias = target
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.from[source] {
		if e.Target == target && e.Alias == alias {
			return e, nil
		}
	}
	return nil, relgraph.NewNotFoundError(fmt.Sprintf("relationship %s -> %s (as %s)", source, target, alias))
}

// Hops returns the hops that start at an entity: its forward edges followed by
// the reversed edges of one-directional declarations that target it.
func (g *Graph) Hops(name string) ([]Hop, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.entities[name]; !ok {
		return nil, relgraph.NewNotFoundError("entity " + name)
	}
	return g.hops(name), nil
}

func (g *Graph) hops(name string) []Hop {
	hs := make([]Hop, 0, len(g.from[name])+len(g.into[name]))
	for _, e := range g.from[name] {
		hs = append(hs, Hop{Edge: e})
	}
	for _, e := range g.into[name] {
		if !e.Bidirectional {
			hs = append(hs, Hop{Edge: e, Reversed: true})
		}
	}
	return hs
}

// HopByRole returns the hop with the given role starting at an entity.
func (g *Graph) HopByRole(name, role string) (Hop, error) {
	hs, err := g.Hops(name)
	if err != nil {
		return Hop{}, err
	}
	for _, h := range hs {
		if h.Role() == role {
			return h, nil
		}
	}
	return Hop{}, relgraph.NewNotFoundError(fmt.Sprintf("relationship %q of %s", role, name))
}

// Columns returns the columns of an entity table: its attributes followed by the
// foreign keys of belongsTo edges it declares and of owned edges targeting it.
// Columns are unique by name; a declared attribute wins over a foreign key.
func (g *Graph) Columns(name string) ([]*Column, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ent, ok := g.entities[name]
	if !ok {
		return nil, relgraph.NewNotFoundError("entity " + name)
	}
	cols := make([]*Column, 0, len(ent.Attributes))
	byName := make(map[string]*Column)
	for _, a := range ent.Attributes {
		c := &Column{
			Name:       a.Name,
			Type:       a.Type,
			Nullable:   a.Nullable() && a.Name != ent.IDField,
			Unique:     a.Unique,
			PrimaryKey: a.Name == ent.IDField,
			Default:    a.Default,
		}
		cols = append(cols, c)
		byName[c.Name] = c
	}
	addFK := func(e *Edge) {
		_, ref := e.ColumnOwner()
		col := e.Column()
		if c, ok := byName[col]; ok {
			if c.Ref == "" && !c.PrimaryKey {
				c.Ref, c.Edge = ref, e
			}
			return
		}
		c := &Column{Name: col, Nullable: true, Ref: ref, Edge: e, Unique: e.Kind == ToOneOwned}
		if r, ok := g.entities[ref]; ok {
			c.Type = r.IDType()
		}
		cols = append(cols, c)
		byName[col] = c
	}
	for _, e := range g.from[name] {
		if e.Kind == ToOneReferenced {
			addFK(e)
		}
	}
	for _, e := range g.into[name] {
		if e.Kind.Owned() {
			addFK(e)
		}
	}
	return cols, nil
}

// JoinTables returns the join structures of shared edges, one per through name.
func (g *Graph) JoinTables() []*JoinTable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var (
		out  []*JoinTable
		seen = make(map[string]bool)
	)
	for _, ent := range g.order {
		for _, e := range g.from[ent.Name] {
			if e.Kind != ToManyShared || seen[e.Through] {
				continue
			}
			seen[e.Through] = true
			src, dst := e.JoinColumns()
			out = append(out, &JoinTable{Name: e.Through, Edge: e, SourceCol: src, TargetCol: dst})
		}
	}
	return out
}

// Sorted returns the entities ordered so that referenced entities come before
// the entities holding foreign keys to them. Entities caught in a cycle keep
// registration order at the end.
func (g *Graph) Sorted() []*Entity {
	placed := make(map[string]bool)
	var out []*Entity
	pending := g.Entities()
	for len(pending) > 0 {
		var rest []*Entity
		for _, ent := range pending {
			cols, _ := g.Columns(ent.Name)
			ready := true
			for _, c := range cols {
				if c.Ref != "" && c.Ref != ent.Name && !placed[c.Ref] {
					ready = false
					break
				}
			}
			if ready {
				placed[ent.Name] = true
				out = append(out, ent)
			} else {
				rest = append(rest, ent)
			}
		}
		if len(rest) == len(pending) {
			return append(out, rest...)
		}
		pending = rest
	}
	return out
}

// MarkEntityLoaded flips the loaded flag of an entity.
func (g *Graph) MarkEntityLoaded(name string) error {
	e, err := g.Entity(name)
	if err != nil {
		return err
	}
	e.loaded.Store(true)
	return nil
}

// MarkEdgeLoaded flips the loaded flag of an edge.
func (g *Graph) MarkEdgeLoaded(source, target, alias string) error {
	e, err := g.Edge(source, target, alias)
	if err != nil {
		return err
	}
	e.loaded.Store(true)
	return nil
}
