// Package field defines the semantic attribute types used in model declarations.
//
// Model files name types the way relational schemas do:
//
//	attributes:
//	  id:       { type: UUID, primaryKey: true }
//	  username: { type: STRING, unique: true, allowNull: false }
//	  locked:   { type: BOOLEAN, allowNull: false }
//	  created:  { type: DATE }
//
// Type names are case-insensitive. Each Type knows how to normalize values
// coming back from drivers that have no native representation for it (for
// example SQLite returns booleans as integers).
package field
