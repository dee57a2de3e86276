// Package seed loads batches of records into a store in dependency order.
//
// Records are added per entity as plain maps, the way they appear in seed
// files. Keys naming an attribute are stored on the record; keys naming a
// relationship role are association requests, resolved after the record is
// inserted and wired with the relationship operations of the graph:
//
//	user:
//	  - username: admin
//	    role: { name: Admin }          # natural key
//	access_group:
//	  - name: Admins
//	    owner: { username: admin }
//	    users: [ { username: admin } ]
//	    resources: all                 # every stored resource
//
// A commit groups the records into dependency sets, orders the sets so that
// referenced entities are inserted first, and inserts them in one transaction.
package seed

import (
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/store"
)

// RefOnlyKey marks a record that only satisfies the dependencies of other
// records. It is grouped and ordered but never inserted.
const RefOnlyKey = "__refOnly"

// All is the association request matching every stored row of the target.
// "*" is accepted as well.
const All = "all"

// Record is a seed record split into the values stored on its row and the
// association requests wired after it is inserted.
type Record struct {
	Entity string
	// Data holds the attribute values of the row.
	Data store.Row
	// Associations maps relationship roles to requests: a natural-key map,
	// a scalar id, All, or a list of those.
	Associations map[string]any
	// Dependencies lists the target entities of the associations, sorted.
	Dependencies []string
	RefOnly      bool
}

// Decompose splits a raw record of entity. Keys that are neither an attribute
// nor a relationship role (or its plural) are ignored. raw is not modified.
func Decompose(g *graph.Graph, entity string, raw map[string]any) (*Record, error) {
	ent, err := g.Entity(entity)
	if err != nil {
		return nil, err
	}
	hops, err := g.Hops(entity)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]graph.Hop, len(hops)*2)
	for _, h := range hops {
		roles[h.Role()] = h
		if h.ToMany() {
			if plural := graph.Plural(h.Role()); plural != h.Role() {
				roles[plural] = h
			}
		}
	}
	r := &Record{
		Entity:       entity,
		Data:         make(store.Row),
		Associations: make(map[string]any),
	}
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		if k == RefOnlyKey {
			r.RefOnly = truthy(v)
			continue
		}
		if isAttribute(ent, k) {
			r.Data[k] = clone(v)
		}
		if h, ok := roles[k]; ok {
			r.Associations[h.Role()] = clone(v)
			if !slices.Contains(r.Dependencies, h.To()) {
				r.Dependencies = append(r.Dependencies, h.To())
			}
		}
	}
	slices.Sort(r.Dependencies)
	return r, nil
}

// key identifies the dependency set of the record.
func (r *Record) key() string {
	return fmt.Sprint(r.Entity, r.Dependencies)
}

// view exposes the record to "$" paths of function arguments.
func (r *Record) view() map[string]any {
	return map[string]any{
		"entity":       r.Entity,
		"data":         map[string]any(r.Data),
		"associations": r.Associations,
	}
}

func isAttribute(ent *graph.Entity, name string) bool {
	for _, a := range ent.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case nil:
		return false
	}
	return true
}

// clone copies the maps and slices of a decoded value.
func clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(v))
		for k, e := range v {
			c[k] = clone(e)
		}
		return c
	case []any:
		c := make([]any, len(v))
		for i, e := range v {
			c[i] = clone(e)
		}
		return c
	}
	return v
}
