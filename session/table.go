// Package session synthesizes the data-access API of a model graph: one
// operation per entity verb and per relationship verb, collected in a
// dispatch table and invoked through a Session.
package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/resolve"
	"github.com/syssam/relgraph/schema/field"
)

// ParamKind is the kind of an operation parameter.
type ParamKind uint8

// Parameter kinds.
const (
	ParamID      ParamKind = iota + 1 // identity of the entity row
	ParamData                         // data object (map[string]any)
	ParamField                        // one positional attribute value
	ParamFilter                       // attribute filter (map[string]any)
	ParamOptions                      // eager-load flags (Options)
	ParamTarget                       // identity of one related row
	ParamTargets                      // identities of related rows
)

var paramKindNames = [...]string{
	ParamID:      "id",
	ParamData:    "data",
	ParamField:   "field",
	ParamFilter:  "filter",
	ParamOptions: "options",
	ParamTarget:  "target",
	ParamTargets: "targets",
}

func (k ParamKind) String() string {
	if int(k) < len(paramKindNames) && paramKindNames[k] != "" {
		return paramKindNames[k]
	}
	return fmt.Sprintf("ParamKind(%d)", k)
}

// Param is one parameter of an operation.
type Param struct {
	Name string
	Kind ParamKind
	Type field.Type // identity or attribute type, when known
}

// Return is the kind of value an operation returns.
type Return uint8

// Return kinds.
const (
	ReturnNone  Return = iota // nil
	ReturnRow                 // store.Row
	ReturnRows                // []store.Row
	ReturnBool                // bool
	ReturnCount               // int64
)

func (r Return) String() string {
	switch r {
	case ReturnRow:
		return "row"
	case ReturnRows:
		return "rows"
	case ReturnBool:
		return "bool"
	case ReturnCount:
		return "count"
	}
	return "none"
}

// Options are the eager-load flags of retrieve and list operations.
type Options map[string]bool

// Operation is one synthesized operation.
type Operation struct {
	Name   string
	Verb   relgraph.Op
	ByArgs bool // positional variant of create and update
	Entity string
	// Target and Alias are the related entity and the role of relationship
	// operations.
	Target string
	Alias  string
	Params []Param
	// Flags are the eager-load option names of retrieve and list, sorted.
	Flags []string

	idField string
	fields  []string
	paths   map[string]graph.Path // by flag
	loads   map[string]*resolve.Resolution
	res     *resolve.Resolution
}

// Relationship reports whether the operation acts on a relationship.
func (o *Operation) Relationship() bool { return o.res != nil }

// Reversed reports whether a relationship operation walks its edge against
// the declared direction.
func (o *Operation) Reversed() bool { return o.res != nil && o.res.Hop.Reversed }

// Resolution returns the resolved relationship of the operation, or nil.
func (o *Operation) Resolution() *resolve.Resolution { return o.res }

// Path returns the eager-load path of a flag.
func (o *Operation) Path(flag string) (graph.Path, bool) {
	p, ok := o.paths[flag]
	return p, ok
}

// Returns reports the kind of value the operation returns.
func (o *Operation) Returns() Return {
	switch o.Verb {
	case relgraph.OpCreate, relgraph.OpRetrieve, relgraph.OpGet:
		return ReturnRow
	case relgraph.OpList, relgraph.OpGetMany:
		return ReturnRows
	case relgraph.OpDelete, relgraph.OpIsSet, relgraph.OpIs, relgraph.OpHas:
		return ReturnBool
	case relgraph.OpUpdate, relgraph.OpCount:
		return ReturnCount
	}
	return ReturnNone
}

// Signature returns a one-line description of the operation, e.g.
// "addRolePermissions(id, permissionIds...) none".
func (o *Operation) Signature() string {
	names := make([]string, len(o.Params))
	for i, p := range o.Params {
		names[i] = p.Name
		if p.Kind == ParamTargets {
			names[i] += "..."
		}
	}
	return fmt.Sprintf("%s(%s) %s", o.Name, strings.Join(names, ", "), o.Returns())
}

func (o *Operation) String() string {
	if o.res != nil {
		return fmt.Sprintf("%s of %s", o.res.Verb, o.res.Hop)
	}
	return fmt.Sprintf("%s of %s", o.Verb, o.Entity)
}

// Table is the dispatch table of synthesized operations.
type Table struct {
	graph *graph.Graph
	ops   map[string]*Operation
	order []*Operation
}

func newTable(g *graph.Graph) *Table {
	return &Table{graph: g, ops: make(map[string]*Operation)}
}

func (t *Table) add(op *Operation) error {
	if prev, ok := t.ops[op.Name]; ok {
		return &relgraph.NameCollisionError{Name: op.Name, First: prev.String(), Second: op.String()}
	}
	t.ops[op.Name] = op
	t.order = append(t.order, op)
	return nil
}

// Graph returns the graph the table was synthesized from.
func (t *Table) Graph() *graph.Graph { return t.graph }

// Lookup returns the operation with the given name.
func (t *Table) Lookup(name string) (*Operation, bool) {
	op, ok := t.ops[name]
	return op, ok
}

// Operations returns the operations in synthesis order: entities in
// registration order, each with its entity operations followed by its
// relationship operations.
func (t *Table) Operations() []*Operation {
	return append([]*Operation(nil), t.order...)
}

// Names returns the sorted operation names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.ops))
	for n := range t.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of operations.
func (t *Table) Len() int { return len(t.ops) }

// Entity returns the operations of one entity, relationship operations
// included.
func (t *Table) Entity(name string) []*Operation {
	var out []*Operation
	for _, op := range t.order {
		if op.Entity == name {
			out = append(out, op)
		}
	}
	return out
}
