// Package resolve maps relationship verbs onto accessor names and onto the
// relational statements that carry them out.
package resolve

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/dialect/sql/sqlgraph"
	"github.com/syssam/relgraph/graph"
)

// RelationOps are the verbs that act on a relationship.
const RelationOps = relgraph.OpGet | relgraph.OpSet | relgraph.OpUnset | relgraph.OpIsSet | relgraph.OpIs |
	relgraph.OpAdd | relgraph.OpRemove | relgraph.OpHas | relgraph.OpCount | relgraph.OpSetMany | relgraph.OpGetMany

// ToOneOps and ToManyOps are the operations generated per relationship.
const (
	ToOneOps  = relgraph.OpSet | relgraph.OpGet | relgraph.OpUnset | relgraph.OpIsSet | relgraph.OpIs
	ToManyOps = relgraph.OpAdd | relgraph.OpRemove | relgraph.OpSetMany | relgraph.OpGetMany | relgraph.OpHas | relgraph.OpCount
)

// table lists the verbs an edge kind supports in singular and plural form.
type table struct {
	singular relgraph.Op
	plural   relgraph.Op
	fallback map[relgraph.Op]relgraph.Op
}

var (
	toOneTable = table{
		singular: relgraph.OpGet | relgraph.OpSet | relgraph.OpUnset | relgraph.OpIsSet | relgraph.OpIs | relgraph.OpCreate,
		fallback: map[relgraph.Op]relgraph.Op{relgraph.OpAdd: relgraph.OpSet, relgraph.OpRemove: relgraph.OpUnset},
	}
	toManyTable = table{
		singular: relgraph.OpHas | relgraph.OpAdd | relgraph.OpRemove | relgraph.OpCreate,
		plural:   relgraph.OpGet | relgraph.OpCount | relgraph.OpHas | relgraph.OpSet | relgraph.OpAdd | relgraph.OpRemove,
	}
	// hop operations requested with the to-one verb on a to-many hop.
	toManyFallback = map[relgraph.Op]relgraph.Op{relgraph.OpGet: relgraph.OpGetMany, relgraph.OpSet: relgraph.OpSetMany}
)

// Resolver resolves operations against an association graph.
type Resolver struct {
	graph  *graph.Graph
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger of the resolver.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a resolver over the graph.
func New(g *graph.Graph, opts ...Option) *Resolver {
	r := &Resolver{graph: g, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Graph returns the graph of the resolver.
func (r *Resolver) Graph() *graph.Graph { return r.graph }

// Accessor returns the accessor name of verb on the edge (source, target, alias):
// the verb followed by the alias, pluralized when plural is set. A verb the edge
// kind does not support may fall back to another verb (add to set on to-one
// edges); otherwise it fails with an UnsupportedOperationError.
//
//	Accessor(OpAdd, "role", "permission", "", true) // "addPermissions"
func (r *Resolver) Accessor(verb relgraph.Op, source, target, alias string, plural bool) (string, error) {
	e, err := r.graph.Edge(source, target, alias)
	if err != nil {
		return "", err
	}
	tbl := toOneTable
	if e.Kind.ToMany() {
		tbl = toManyTable
	}
	allowed := tbl.singular
	if plural {
		allowed = tbl.plural
	}
	if !verb.Is(allowed) {
		fb, ok := tbl.fallback[verb]
		if !ok || !fb.Is(allowed) {
			return "", unsupported(verb, e)
		}
		verb = fb
	}
	role := e.Alias
	if plural {
		role = graph.Plural(role)
	}
	return graph.MethodName(verb.String(), role), nil
}

// Resolution is a relationship operation resolved for one hop.
type Resolution struct {
	Hop  graph.Hop
	Verb relgraph.Op
	// Name is the session operation name, e.g. "setUserRole".
	Name string
	// Native reports whether the relationship column lives on the owner row
	// of a forward edge, so the operation maps onto plain store updates and
	// queries instead of relation statements.
	Native bool
	// Relation holds the statement shape. Its Dialect is set per store.
	Relation sqlgraph.Relation
}

// Resolve resolves verb on a hop. To-one hops support set, get, unset, isSet
// and is (add and remove fall back to set and unset); to-many hops support
// add, remove, setMany, getMany, has and count (get and set fall back to
// getMany and setMany).
func (r *Resolver) Resolve(h graph.Hop, verb relgraph.Op) (*Resolution, error) {
	allowed, fallback := ToOneOps, toOneTable.fallback
	if h.ToMany() {
		allowed, fallback = ToManyOps, toManyFallback
	}
	if !verb.Is(allowed) {
		fb, ok := fallback[verb]
		if !ok {
			return nil, unsupported(verb, h.Edge)
		}
		verb = fb
	}
	rel, err := r.relation(h)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Hop:      h,
		Verb:     verb,
		Name:     OperationName(verb, h),
		Native:   !h.Reversed && h.Kind() == graph.ToOneReferenced,
		Relation: rel,
	}, nil
}

// ResolveRole resolves verb on the relationship named role of an entity.
func (r *Resolver) ResolveRole(entity, role string, verb relgraph.Op) (*Resolution, error) {
	h, err := r.graph.HopByRole(entity, role)
	if err != nil {
		return nil, err
	}
	return r.Resolve(h, verb)
}

// relation returns the statement shape of a hop. The hop start is the owner.
func (r *Resolver) relation(h graph.Hop) (sqlgraph.Relation, error) {
	from, err := r.graph.Entity(h.From())
	if err != nil {
		return sqlgraph.Relation{}, err
	}
	to, err := r.graph.Entity(h.To())
	if err != nil {
		return sqlgraph.Relation{}, err
	}
	rel := sqlgraph.Relation{
		OwnerTable: from.Table,
		OwnerID:    from.IDField,
		OtherTable: to.Table,
		OtherID:    to.IDField,
	}
	switch e := h.Edge; {
	case e.Kind == graph.ToManyShared:
		rel.Shape, rel.JoinTable = sqlgraph.Join, e.Through
		rel.OwnerCol, rel.OtherCol = e.JoinColumns()
		if h.Reversed {
			rel.OwnerCol, rel.OtherCol = rel.OtherCol, rel.OwnerCol
		}
	case (e.Kind == graph.ToOneReferenced) != h.Reversed:
		rel.Shape, rel.Column = sqlgraph.LocalKey, e.Column()
	default:
		rel.Shape, rel.Column = sqlgraph.RemoteKey, e.Column()
	}
	return rel, nil
}

// OperationName returns the session operation name of verb on a hop:
// the verb, the hop start entity and the role, pluralized on to-many hops.
//
//	OperationName(OpSet, user->role)              // "setUserRole"
//	OperationName(OpSetMany, role->permission)    // "setRolePermissions"
func OperationName(verb relgraph.Op, h graph.Hop) string {
	role := h.Role()
	if h.ToMany() {
		role = graph.Plural(role)
	}
	return graph.MethodName(VerbName(verb), h.From(), role)
}

// VerbName returns the name prefix of a verb. setMany and getMany are named
// set and get; the plural role tells them apart.
func VerbName(verb relgraph.Op) string {
	switch verb {
	case relgraph.OpSetMany:
		return "set"
	case relgraph.OpGetMany:
		return "get"
	}
	return verb.String()
}

// Validate checks that every edge of the graph resolves the access and mutate
// verbs in both directions. Failures are configuration errors.
func (r *Resolver) Validate() error {
	for _, ent := range r.graph.Entities() {
		edges, err := r.graph.EdgesFrom(ent.Name)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := r.Accessor(relgraph.OpGet, e.Source, e.Target, e.Alias, e.Kind.ToMany()); err != nil {
				return &relgraph.ConfigurationError{Subject: e.String(), Message: "no access operation", Cause: err}
			}
			if _, err := r.Accessor(relgraph.OpAdd, e.Source, e.Target, e.Alias, e.Kind.ToMany()); err != nil {
				return &relgraph.ConfigurationError{Subject: e.String(), Message: "no mutate operation", Cause: err}
			}
			for _, h := range []graph.Hop{{Edge: e}, {Edge: e, Reversed: true}} {
				for _, verb := range []relgraph.Op{relgraph.OpGet, relgraph.OpSet} {
					if _, err := r.Resolve(h, verb); err != nil {
						return &relgraph.ConfigurationError{Subject: h.String(), Message: fmt.Sprintf("cannot resolve %s", verb), Cause: err}
					}
				}
			}
		}
	}
	return nil
}

func unsupported(verb relgraph.Op, e *graph.Edge) error {
	return &relgraph.UnsupportedOperationError{
		Verb:   verb.String(),
		Source: e.Source,
		Target: e.Target,
		Alias:  e.Alias,
		Kind:   e.Kind.String(),
	}
}
