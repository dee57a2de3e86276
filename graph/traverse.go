package graph

import "strings"

// Path is a chain of hops rooted at an entity.
type Path []Hop

// Roles returns the role chain of the path.
func (p Path) Roles() []string {
	roles := make([]string, len(p))
	for i, h := range p {
		roles[i] = h.Role()
	}
	return roles
}

// Key returns the dot-joined role chain, unique per path of one root.
func (p Path) Key() string {
	return strings.Join(p.Roles(), ".")
}

// Flag returns the eager-load option name of the path: the role chain in
// lowerCamel case, with the last role pluralized when the last hop is to-many.
//
//	role -> permissions (to-many)  // "rolePermissions"
func (p Path) Flag() string {
	if len(p) == 0 {
		return ""
	}
	roles := p.Roles()
	if p.Last().ToMany() {
		roles[len(roles)-1] = Plural(roles[len(roles)-1])
	}
	return LowerCamel(roles...)
}

// Last returns the last hop of a non-empty path.
func (p Path) Last() Hop { return p[len(p)-1] }

// Parent returns the path without its last hop.
func (p Path) Parent() Path { return p[:len(p)-1] }

func (p Path) visits(target, role string) bool {
	for _, h := range p {
		if h.To() == target && h.Role() == role {
			return true
		}
	}
	return false
}

// Traverse returns the eager-load paths rooted at an entity, breadth first, of
// length 1 up to depth. A hop whose (target, role) already appears in the path
// is not taken; paths with the same role chain are returned once.
func (g *Graph) Traverse(name string, depth int) ([]Path, error) {
	if _, err := g.Entity(name); err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var (
		out   []Path
		seen  = make(map[string]bool)
		queue = []Path{nil}
	)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		at := name
		if len(p) > 0 {
			at = p.Last().To()
		}
		for _, h := range g.hops(at) {
			if p.visits(h.To(), h.Role()) {
				continue
			}
			next := make(Path, len(p), len(p)+1)
			copy(next, p)
			next = append(next, h)
			key := next.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, next)
			if len(next) < depth {
				queue = append(queue, next)
			}
		}
	}
	return out, nil
}
