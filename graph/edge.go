package graph

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/field"
)

// Kind is the kind of a relationship edge.
type Kind uint8

// Edge kinds.
const (
	KindInvalid Kind = iota
	ToOneOwned
	ToOneReferenced
	ToManyOwned
	ToManyShared
)

var kindNames = [...]string{
	KindInvalid:     "invalid",
	ToOneOwned:      "hasOne",
	ToOneReferenced: "belongsTo",
	ToManyOwned:     "hasMany",
	ToManyShared:    "belongsToMany",
}

// String returns the declarative association name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ToMany reports if the kind is to-many when walked forward.
func (k Kind) ToMany() bool { return k == ToManyOwned || k == ToManyShared }

// Owned reports if the foreign key lives on the target rows.
func (k Kind) Owned() bool { return k == ToOneOwned || k == ToManyOwned }

// ParseKind parses an association type (case-insensitive).
func ParseKind(s string) (Kind, error) {
	for k := ToOneOwned; k <= ToManyShared; k++ {
		if strings.EqualFold(kindNames[k], s) {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("graph: unknown association type %q", s)
}

// Entity is a registered entity.
type Entity struct {
	Name       string
	Table      string
	IDField    string
	Owner      string
	Attributes schema.Attributes

	desc   *schema.Entity
	loaded atomic.Bool
}

// ID returns the identity attribute.
func (e *Entity) ID() *schema.Attribute {
	a, _ := e.Attributes.Lookup(e.IDField)
	return a
}

// IDType returns the type of the identity attribute.
func (e *Entity) IDType() field.Type {
	if a := e.ID(); a != nil {
		return a.Type
	}
	return field.TypeInt
}

// Fields returns the non-identity attribute names, in declaration order.
func (e *Entity) Fields() []string {
	names := make([]string, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		if a.Name != e.IDField {
			names = append(names, a.Name)
		}
	}
	return names
}

// Loaded reports whether the backing structure of the entity is materialized.
func (e *Entity) Loaded() bool { return e.loaded.Load() }

// Descriptor returns the declaration the entity was registered from.
func (e *Entity) Descriptor() *schema.Entity { return e.desc }

// Edge is a directed relationship from Source to Target.
type Edge struct {
	Source  string
	Target  string
	Alias   string
	Kind    Kind
	Through string
	// OnDelete is the SQL referential action of the foreign key, or "" for
	// the store default.
	OnDelete string

	// Bidirectional is set by Classify when the target declares the reverse edge.
	Bidirectional bool

	loaded atomic.Bool
}

// Loaded reports whether the backing structure of the edge is materialized.
func (e *Edge) Loaded() bool { return e.loaded.Load() }

// DefaultAlias reports if the alias is the target name.
func (e *Edge) DefaultAlias() bool { return e.Alias == e.Target }

// ReverseRole returns the role of the edge seen from its target.
func (e *Edge) ReverseRole() string {
	if e.DefaultAlias() {
		return e.Source
	}
	return e.Alias + "_" + e.Source
}

// String returns a short description, e.g. "user -belongsTo-> role (as role)".
func (e *Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s (as %s)", e.Source, e.Kind, e.Target, e.Alias)
}

// Column returns the foreign-key column of a non-shared edge.
func (e *Edge) Column() string {
	switch {
	case e.Kind == ToOneReferenced:
		return Snake(e.Alias) + "_id"
	case e.Kind.Owned() && e.DefaultAlias():
		return Snake(e.Source) + "_id"
	case e.Kind.Owned():
		return Snake(e.Source) + "_" + Snake(e.Alias) + "_id"
	default:
		return ""
	}
}

// ColumnOwner returns the entity whose table carries the foreign-key column,
// and the entity it references.
func (e *Edge) ColumnOwner() (owner, ref string) {
	if e.Kind == ToOneReferenced {
		return e.Source, e.Target
	}
	return e.Target, e.Source
}

// JoinColumns returns the join-table columns referencing the source and the target.
func (e *Edge) JoinColumns() (src, dst string) {
	src = Snake(e.Source) + "_id"
	if e.Source == e.Target {
		return src, Snake(e.Alias) + "_id"
	}
	return src, Snake(e.Target) + "_id"
}

// Hop is an edge walked in one direction.
type Hop struct {
	Edge     *Edge
	Reversed bool
}

// From returns the entity the hop starts at.
func (h Hop) From() string {
	if h.Reversed {
		return h.Edge.Target
	}
	return h.Edge.Source
}

// To returns the entity the hop leads to.
func (h Hop) To() string {
	if h.Reversed {
		return h.Edge.Source
	}
	return h.Edge.Target
}

// Role returns the name of the hop as seen from its start entity.
func (h Hop) Role() string {
	if h.Reversed {
		return h.Edge.ReverseRole()
	}
	return h.Edge.Alias
}

// ToMany reports if walking the hop may lead to more than one row.
func (h Hop) ToMany() bool {
	if !h.Reversed {
		return h.Edge.Kind.ToMany()
	}
	return h.Edge.Kind == ToOneReferenced || h.Edge.Kind == ToManyShared
}

// Kind returns the edge kind.
func (h Hop) Kind() Kind { return h.Edge.Kind }

// String returns a short description of the hop.
func (h Hop) String() string {
	if h.Reversed {
		return fmt.Sprintf("%s <-%s- %s (as %s)", h.From(), h.Edge.Kind, h.To(), h.Role())
	}
	return h.Edge.String()
}

// Column describes a column of an entity table: an attribute or a foreign key.
type Column struct {
	Name       string
	Type       field.Type
	Nullable   bool
	Unique     bool
	PrimaryKey bool
	Default    any
	// Ref names the referenced entity of a foreign-key column.
	Ref string
	// Edge is the first edge that introduced the foreign key.
	Edge *Edge
}

// JoinTable describes a join structure of shared edges.
type JoinTable struct {
	Name      string
	Edge      *Edge
	SourceCol string
	TargetCol string
}
