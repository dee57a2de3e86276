// Package schema materializes the tables of an association graph using Atlas:
// one table per entity, foreign keys for to-one references and one join table
// per shared relationship.
package schema
