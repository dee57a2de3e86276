// Package sqlgraph builds the statements that read and mutate relationships
// directly on foreign-key columns and join tables, and classifies constraint
// errors reported by the database drivers.
//
// A Relation is always seen from an owner row. Its shape tells where the link
// is stored:
//
//   - LocalKey:  a foreign-key column on the owner row points at one other row.
//   - RemoteKey: a foreign-key column on other rows points back at the owner.
//   - Join:      rows of a join table pair the owner with other rows.
package sqlgraph
