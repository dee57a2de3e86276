package seed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/contrib/dataloader"
)

// Set is a group of records sharing an entity and a dependency list.
type Set struct {
	Entity       string
	Dependencies []string
	// Records holds the records to insert, in batch order. Reference-only
	// records are grouped but not kept.
	Records []*Record
}

// String returns the set as "entity[dep1,dep2]".
func (s *Set) String() string {
	return s.Entity + "[" + strings.Join(s.Dependencies, ",") + "]"
}

// bulk reports whether no record of the set has association requests.
func (s *Set) bulk() bool {
	for _, r := range s.Records {
		if len(r.Associations) > 0 {
			return false
		}
	}
	return true
}

// Group groups records into dependency sets, in order of first appearance.
func Group(records []*Record) []*Set {
	groups := dataloader.GroupByKey(records, (*Record).key)
	var sets []*Set
	for _, r := range records {
		members, ok := groups[r.key()]
		if !ok {
			continue
		}
		delete(groups, r.key())
		s := &Set{Entity: r.Entity, Dependencies: r.Dependencies}
		for _, m := range members {
			if !m.RefOnly {
				s.Records = append(s.Records, m)
			}
		}
		sets = append(sets, s)
	}
	return sets
}

// Order places the sets so that every set comes after a set of each entity
// it depends on. Sets are scanned repeatedly; a set is placed once each of
// its dependency entities has a placed set. A dependency on the set's own
// entity is also met when no other set of that entity is pending, so
// self-referencing records can load on their own. When a full scan places
// nothing, the remaining sets are appended in their original order and a
// *relgraph.DependencyError naming them is returned with the full ordering.
func Order(sets []*Set) ([]*Set, error) {
	pending := slices.Clone(sets)
	ordered := make([]*Set, 0, len(sets))
	placed := make(map[string]bool)
	for len(pending) > 0 {
		progress := false
		for i := 0; i < len(pending); i++ {
			s := pending[i]
			if !satisfied(s, pending, placed) {
				continue
			}
			ordered = append(ordered, s)
			placed[s.Entity] = true
			pending = slices.Delete(pending, i, i+1)
			i--
			progress = true
		}
		if !progress {
			err := &relgraph.DependencyError{}
			for _, s := range pending {
				err.Sets = append(err.Sets, s.String())
			}
			return append(ordered, pending...), err
		}
	}
	return ordered, nil
}

func satisfied(s *Set, pending []*Set, placed map[string]bool) bool {
	for _, dep := range s.Dependencies {
		if placed[dep] {
			continue
		}
		if dep != s.Entity || slices.ContainsFunc(pending, func(p *Set) bool {
			return p != s && p.Entity == dep
		}) {
			return false
		}
	}
	return true
}

// describe returns a short summary of an ordering, used in logs.
func describe(sets []*Set) string {
	parts := make([]string, len(sets))
	for i, s := range sets {
		parts[i] = fmt.Sprintf("%s(%d)", s, len(s.Records))
	}
	return strings.Join(parts, " ")
}
