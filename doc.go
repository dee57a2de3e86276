// Package relgraph derives a relationship-aware data access layer from declarative
// entity models.
//
// The model files populate an association graph (package graph). The resolver
// (package resolve) maps an edge plus a verb to an accessor or to relation
// statements. The session synthesizer (package session) turns the graph into a
// dispatch table of CRUD and relationship operations, and compiler/gen emits the
// same table as Go source. The seed package inserts interrelated records in
// dependency order.
//
// This package holds the pieces shared by all of them: the error taxonomy, the
// operation verbs and the cache interface.
package relgraph
