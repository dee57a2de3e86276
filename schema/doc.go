// Package schema holds the declarative model input: entity descriptors with
// ordered attributes, declared associations and meta information.
//
// Descriptors are usually read from YAML files, one or more documents per file:
//
//	name: user
//	attributes:
//	  id:       { type: UUID, primaryKey: true }
//	  username: { type: STRING, unique: true, allowNull: false }
//	associations:
//	  - { type: belongsTo, target: role }
//	  - { type: belongsToMany, target: access_group, through: user_access_groups }
//	meta:
//	  idField: id
//
// Attribute order is preserved; it drives positional arguments of the
// generated create and update operations.
package schema
