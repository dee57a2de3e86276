// Package graph holds the association graph: registered entities and the
// directed relationship edges derived from their declarations.
//
// # Edges
//
// Every declared association becomes one forward Edge from its source entity.
// The same edge is discoverable from the target through EdgesInto, where it is
// walked as a reversed Hop:
//
//	user --belongsTo(role)--> role       forward hop "role" from user
//	                                     reversed hop "user" from role (to-many)
//
// Edge kinds map onto the declarative association types:
//
//   - ToOneOwned:      hasOne
//   - ToOneReferenced: belongsTo
//   - ToManyOwned:     hasMany
//   - ToManyShared:    belongsToMany (requires a join structure)
//
// # Roles
//
// The role of a forward hop is the edge alias, which defaults to the target
// name. The role of a reversed hop is the source name, prefixed with the alias
// when the alias is not the default one (e.g. "owner_resource").
//
// An edge is bidirectional when its target declares a forward edge back to the
// source whose role equals the edge's reverse role. Classify marks these edges;
// consumers skip their reversed hops since the modeler already declared them.
//
// # Traversal
//
// Traverse enumerates eager-load paths breadth first, up to a depth. A hop is
// never taken twice to the same (target, role) within one path; paths are
// deduplicated by their role chain.
package graph
